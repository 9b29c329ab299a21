package conversation

import (
	"maps"

	"github.com/mmeshcher/orderbot/internal/model"
)

// State - активная форма пользователя. Поле попадает в Fields только после
// того, как его шаг принял ответ.
type State struct {
	Form     FormKind          `json:"form"`
	Variant  Variant           `json:"variant"`
	Step     int               `json:"step"`
	Fields   map[string]string `json:"fields"`
	Category model.Category    `json:"category,omitempty"`
}

func (s State) steps() []Step {
	return variants[s.Variant]
}

// current возвращает текущий шаг; false для повреждённого состояния.
func (s State) current() (Step, bool) {
	steps := s.steps()
	if s.Step < 0 || s.Step >= len(steps) {
		return Step{}, false
	}
	return steps[s.Step], true
}

// advance возвращает копию состояния с принятым значением и следующим шагом.
func (s State) advance(field, value string) State {
	next := s
	next.Fields = make(map[string]string, len(s.Fields)+1)
	maps.Copy(next.Fields, s.Fields)
	next.Fields[field] = value
	next.Step++
	return next
}

func (s State) done() bool {
	return s.Step >= len(s.steps())
}

func (s State) clone() State {
	c := s
	c.Fields = maps.Clone(s.Fields)
	return c
}
