package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Answer is a submission for the current unit: either one value for one
// question, or a mapping of question numbers to values for a block.
type Answer interface {
	isAnswer()
}

// SingleAnswer carries one value for one question number.
type SingleAnswer struct {
	QuestionNumber int
	Value          string
}

// BlockAnswer carries several values for the members of a block.
type BlockAnswer struct {
	Values map[int]string
}

func (SingleAnswer) isAnswer() {}
func (BlockAnswer) isAnswer()  {}

// DecodeAnswer builds an Answer from the wire shape: a question number with a
// string value, or a null question number with an object value.
func DecodeAnswer(questionNumber *int, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: answer is required", ErrValidation)
	}

	if questionNumber != nil {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: answer for question %d must be a string", ErrValidation, *questionNumber)
		}
		return SingleAnswer{QuestionNumber: *questionNumber, Value: v}, nil
	}

	var m map[string]*string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: block answer must map question numbers to values", ErrValidation)
	}
	values := make(map[int]string, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: block answer key %q is not a question number", ErrValidation, k)
		}
		if v == nil || *v == "" {
			continue
		}
		values[n] = *v
	}
	return BlockAnswer{Values: values}, nil
}
