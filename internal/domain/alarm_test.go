package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validTemplate() AlarmTemplate {
	return AlarmTemplate{
		UserID:     "client-id",
		APIKey:     "client-secret",
		TemplateID: 26077,
		Messages: []Message{
			{
				No:         "1",
				TelNum:     "01045299453",
				MsgContent: "message test",
				SMSContent: "sms test",
				UseSMS:     UseSMSEnabled,
				BtnURL: []ButtonURL{
					{URLMobile: "http://www.sustable.kr", URLPC: "http://www.sustable.kr"},
				},
			},
		},
	}
}

func TestAlarmTemplateValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*AlarmTemplate)
		wantErr bool
	}{
		{
			name:   "valid template",
			mutate: func(tpl *AlarmTemplate) {},
		},
		{
			name:    "missing userid",
			mutate:  func(tpl *AlarmTemplate) { tpl.UserID = " " },
			wantErr: true,
		},
		{
			name:    "missing api key",
			mutate:  func(tpl *AlarmTemplate) { tpl.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "zero template id",
			mutate:  func(tpl *AlarmTemplate) { tpl.TemplateID = 0 },
			wantErr: true,
		},
		{
			name:    "no messages",
			mutate:  func(tpl *AlarmTemplate) { tpl.Messages = nil },
			wantErr: true,
		},
		{
			name:    "missing tel",
			mutate:  func(tpl *AlarmTemplate) { tpl.Messages[0].TelNum = "" },
			wantErr: true,
		},
		{
			name:    "missing rich body",
			mutate:  func(tpl *AlarmTemplate) { tpl.Messages[0].MsgContent = "" },
			wantErr: true,
		},
		{
			name: "sms enabled without sms body",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].SMSContent = ""
			},
			wantErr: true,
		},
		{
			name: "sms disabled without sms body",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].UseSMS = UseSMSDisabled
				tpl.Messages[0].SMSContent = ""
			},
		},
		{
			name:    "unknown use_sms flag",
			mutate:  func(tpl *AlarmTemplate) { tpl.Messages[0].UseSMS = "yes" },
			wantErr: true,
		},
		{
			name: "rich body over limit",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].MsgContent = strings.Repeat("a", DefaultMaxMessageLength+1)
			},
			wantErr: true,
		},
		{
			name: "rune-aware rich body accepted",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].MsgContent = strings.Repeat("가", DefaultMaxMessageLength)
			},
		},
		{
			name: "sms body over limit",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].SMSContent = strings.Repeat("a", DefaultMaxSMSLength+1)
			},
			wantErr: true,
		},
		{
			name: "invalid utf-8",
			mutate: func(tpl *AlarmTemplate) {
				tpl.Messages[0].MsgContent = "bad \xff byte"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tpl := validTemplate()
			tt.mutate(&tpl)

			err := tpl.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestAlarmTemplateValidateCustomLimits(t *testing.T) {
	t.Parallel()

	tpl := validTemplate()
	err := tpl.ValidateWithLimits(Limits{MaxMessageLength: 5, MaxSMSLength: 100})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateWithLimits() error = %v, want ErrValidation", err)
	}
}

func TestAlarmTemplateValidateContentSkipsCredentials(t *testing.T) {
	t.Parallel()

	tpl := validTemplate()
	tpl.UserID = ""
	tpl.APIKey = ""
	if err := tpl.ValidateContent(DefaultLimits()); err != nil {
		t.Fatalf("ValidateContent() error = %v", err)
	}
	if err := tpl.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	tpl.TemplateID = 0
	if err := tpl.ValidateContent(DefaultLimits()); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateContent() error = %v, want ErrValidation", err)
	}
}

func TestDefaultLimitsSMSNotLongerThanMessage(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	if limits.MaxSMSLength > limits.MaxMessageLength {
		t.Fatalf("MaxSMSLength = %d exceeds MaxMessageLength = %d", limits.MaxSMSLength, limits.MaxMessageLength)
	}
}

func TestNilTemplateValidate(t *testing.T) {
	t.Parallel()

	var tpl *AlarmTemplate
	if err := tpl.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestAlarmTemplateWireShape(t *testing.T) {
	t.Parallel()

	tpl := validTemplate()
	payload, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	for _, key := range []string{"userid", "api_key", "template_id", "messages"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("payload missing key %q: %s", key, payload)
		}
	}

	messages := decoded["messages"].([]any)
	first := messages[0].(map[string]any)
	for _, key := range []string{"no", "tel_num", "msg_content", "sms_content", "use_sms", "btn_url"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("message missing key %q: %s", key, payload)
		}
	}
}

func TestResponseCodeUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    ResponseCode
		wantErr bool
	}{
		{name: "numeric code", body: `{"code":200,"msg":"ok"}`, want: "200"},
		{name: "string code", body: `{"code":"E01","msg":"bad"}`, want: "E01"},
		{name: "null code", body: `{"code":null}`, want: ""},
		{name: "object code", body: `{"code":{"x":1}}`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var resp ResponseMessage
			err := json.Unmarshal([]byte(tt.body), &resp)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			if resp.Code != tt.want {
				t.Fatalf("Code = %q, want %q", resp.Code, tt.want)
			}
		})
	}
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()

	if got := MaskPhone("01045299453"); got != "*******9453" {
		t.Fatalf("MaskPhone() = %q, want %q", got, "*******9453")
	}
	if got := MaskPhone("123"); got != "***" {
		t.Fatalf("MaskPhone() = %q, want %q", got, "***")
	}
}
