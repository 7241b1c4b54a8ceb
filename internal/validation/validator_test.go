// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() should not return nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

type tupleRequest struct {
	Dom  string `json:"dom" validate:"required,domain"`
	Obj  string `json:"obj" validate:"required,max=64"`
	Act  string `json:"act" validate:"required,crud_action"`
	User string `json:"username" validate:"omitempty,username"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	valid := tupleRequest{Dom: "0", Obj: "mra_users", Act: "R", User: "alice"}

	tests := []struct {
		name      string
		mutate    func(r *tupleRequest)
		wantField string
		wantTag   string
	}{
		{"valid", func(r *tupleRequest) {}, "", ""},
		{"tenant domain", func(r *tupleRequest) { r.Dom = "acme-eu_1" }, "", ""},
		{"dotted username", func(r *tupleRequest) { r.User = "j.doe-2" }, "", ""},
		{"username omitted", func(r *tupleRequest) { r.User = "" }, "", ""},
		{"missing domain", func(r *tupleRequest) { r.Dom = "" }, "dom", "required"},
		{"domain with space", func(r *tupleRequest) { r.Dom = "a b" }, "dom", "domain"},
		{"domain leading dash", func(r *tupleRequest) { r.Dom = "-17" }, "dom", "domain"},
		{"domain too long", func(r *tupleRequest) { r.Dom = strings.Repeat("d", 65) }, "dom", "domain"},
		{"write is not an action", func(r *tupleRequest) { r.Act = "W" }, "act", "crud_action"},
		{"combined actions", func(r *tupleRequest) { r.Act = "CR" }, "act", "crud_action"},
		{"lowercase action", func(r *tupleRequest) { r.Act = "r" }, "act", "crud_action"},
		{"object too long", func(r *tupleRequest) { r.Obj = strings.Repeat("o", 65) }, "obj", "max"},
		{"short username", func(r *tupleRequest) { r.User = "ab" }, "username", "username"},
		{"username with at", func(r *tupleRequest) { r.User = "a@b.com" }, "username", "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			verr := ValidateStruct(&req)

			if tt.wantTag == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Fields
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field != tt.wantField || errs[0].Tag != tt.wantTag {
				t.Errorf("error on %s/%s, want %s/%s", errs[0].Field, errs[0].Tag, tt.wantField, tt.wantTag)
			}
			if !strings.HasPrefix(errs[0].Error(), tt.wantField+" ") {
				t.Errorf("message %q should start with the JSON field name", errs[0].Error())
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	verr := ValidateStruct(&tupleRequest{Dom: "0", Obj: "x", Act: "W"})
	if verr == nil {
		t.Fatal("expected validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != ErrorCode {
		t.Errorf("Code = %s, want %s", apiErr.Code, ErrorCode)
	}
	if apiErr.Message != "act must be one of C, R, U, D" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "act" || fields[0].Tag != "crud_action" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	verr := ValidateStruct(&tupleRequest{})
	if verr == nil {
		t.Fatal("expected validation error")
	}

	apiErr := verr.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("Details[fields] = %T, want []FieldError", apiErr.Details["fields"])
	}
	if len(fields) != 3 {
		t.Errorf("got %d field errors, want 3 (dom, obj, act)", len(fields))
	}
	for _, name := range []string{"dom is required", "obj is required", "act is required"} {
		if !strings.Contains(apiErr.Message, name) {
			t.Errorf("Message %q missing %q", apiErr.Message, name)
		}
	}
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&RequestValidationError{}).ToAPIError()
	if apiErr.Code != ErrorCode || apiErr.Message != "Validation failed" {
		t.Errorf("ToAPIError() = %+v", apiErr)
	}
}

type accountRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8"`
	Code     string `json:"code" validate:"omitempty,numeric,len=6"`
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		req  accountRequest
		want string
	}{
		{"email", accountRequest{Email: "nope", Password: "longenough"}, "email must be a valid email address"},
		{"min", accountRequest{Email: "a@b.co", Password: "short"}, "password must be at least 8 characters"},
		{"len", accountRequest{Email: "a@b.co", Password: "longenough", Code: "12345"}, "code must be exactly 6 characters"},
		{"numeric", accountRequest{Email: "a@b.co", Password: "longenough", Code: "12a456"}, "code must be numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", verr.Error(), tt.want)
			}
		})
	}
}
