package validation

import (
	"testing"

	"gotest.tools/v3/assert"
)

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type deviceForm struct {
	Name   string `validate:"required,max=10"`
	AppKey string `validate:"len=32"`
	Port   uint8  `validate:"min=1,max=223"`
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator()

	assert.NilError(t, v.Validate(loginForm{
		Email:    "operator@example.com",
		Password: "correct horse",
	}))

	assert.NilError(t, v.Validate(&deviceForm{
		Name:   "roof-node",
		AppKey: "000102030405060708090a0b0c0d0e0f",
		Port:   56,
	}))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		wantErr string
	}{
		{
			"missing required",
			loginForm{Password: "correct horse"},
			"Email: field is required",
		},
		{
			"bad email",
			loginForm{Email: "operator", Password: "correct horse"},
			"invalid email format",
		},
		{
			"too short",
			loginForm{Email: "operator@example.com", Password: "hunter2"},
			"Password: minimum is 8",
		},
		{
			"too long",
			deviceForm{Name: "a-name-well-past-the-limit", AppKey: "000102030405060708090a0b0c0d0e0f", Port: 1},
			"Name: maximum is 10",
		},
		{
			"wrong length",
			deviceForm{Name: "node", AppKey: "abcd", Port: 1},
			"AppKey: length must be 32",
		},
		{
			"numeric above max",
			deviceForm{Name: "node", AppKey: "000102030405060708090a0b0c0d0e0f", Port: 224},
			"Port: maximum is 223",
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, v.Validate(tt.input), tt.wantErr)
		})
	}
}

func TestValidateNonStruct(t *testing.T) {
	v := NewValidator()
	assert.ErrorContains(t, v.Validate(42), "expects a struct")
}

func TestValidateSkipsUntaggedFields(t *testing.T) {
	v := NewValidator()
	assert.NilError(t, v.Validate(struct {
		Free string
		Note string `json:"note"`
	}{}))
}
