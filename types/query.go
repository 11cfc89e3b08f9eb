package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultChatModel = "llama3.2:3b"
	DefaultTopK      = 5
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type IndexParams struct {
	FolderPath string `json:"folder_path" validate:"required"`
}

type QueryParams struct {
	Query string `json:"query" validate:"required"`
	Model string `json:"model"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`
}

type PullParams struct {
	ModelName string `json:"model_name" validate:"required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// ApplyDefaults fills the optional query fields.
func (params *QueryParams) ApplyDefaults() {
	if params.Model == "" {
		params.Model = DefaultChatModel
	}
	if params.TopK == 0 {
		params.TopK = DefaultTopK
	}
}

func (params *IndexParams) Validate() map[string]string {
	return structErrors(params)
}

func (params *QueryParams) Validate() map[string]string {
	return structErrors(params)
}

func (params *PullParams) Validate() map[string]string {
	return structErrors(params)
}

func structErrors(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	errors := make(map[string]string, len(errs))
	for _, e := range errs {
		errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return errors
}
