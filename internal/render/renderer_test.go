package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()

	r, err := NewRenderer(Config{
		Credentials: Credentials{ClientID: "lunar-id", ClientSecret: "lunar-secret"},
		TemplateID:  26077,
		UseSMS:      true,
	})
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func sampleInput() RenderInput {
	return RenderInput{
		ShopName:  "Sustable",
		UserName:  "Kim",
		UserID:    "kim01",
		Tel:       "01045299453",
		URL:       "http://www.sustable.kr",
		SendPhone: "02-1234-5678",
	}
}

func TestRenderSustableScenario(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t)

	tpl, err := r.Render(sampleInput())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if tpl.TemplateID != 26077 {
		t.Fatalf("TemplateID = %d, want 26077", tpl.TemplateID)
	}
	if tpl.UserID != "lunar-id" || tpl.APIKey != "lunar-secret" {
		t.Fatalf("credentials = %q/%q, want lunar-id/lunar-secret", tpl.UserID, tpl.APIKey)
	}
	if len(tpl.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(tpl.Messages))
	}

	msg := tpl.Messages[0]
	if msg.TelNum != "01045299453" {
		t.Fatalf("TelNum = %q, want 01045299453", msg.TelNum)
	}
	if msg.UseSMS != domain.UseSMSEnabled {
		t.Fatalf("UseSMS = %q, want %q", msg.UseSMS, domain.UseSMSEnabled)
	}
	for _, want := range []string{"[Sustable]", "Kim님"} {
		if !strings.Contains(msg.SMSContent, want) {
			t.Fatalf("SMS body missing %q:\n%s", want, msg.SMSContent)
		}
		if !strings.Contains(msg.MsgContent, want) {
			t.Fatalf("rich body missing %q:\n%s", want, msg.MsgContent)
		}
	}
	if !strings.Contains(msg.MsgContent, "ID : kim01") {
		t.Fatalf("rich body missing user id:\n%s", msg.MsgContent)
	}
	if !strings.Contains(msg.MsgContent, "(0212345678)") {
		t.Fatalf("rich body missing normalized send phone:\n%s", msg.MsgContent)
	}
	if len(msg.BtnURL) != 1 || msg.BtnURL[0].URLMobile != "http://www.sustable.kr" || msg.BtnURL[0].URLPC != "http://www.sustable.kr" {
		t.Fatalf("BtnURL = %+v, want sustable urls", msg.BtnURL)
	}
}

func TestRenderSanitizesUntrustedFields(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t)

	in := sampleInput()
	in.ShopName = "  Evil\nShop]\r\n[Injected "
	in.UserName = "Kim\t\u200bLee\x00"

	tpl, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	body := tpl.Messages[0].MsgContent
	if !strings.Contains(body, "[Evil Shop] [Injected]") {
		t.Fatalf("shop name should be flattened to one line:\n%s", body)
	}
	if strings.Contains(body, "\x00") || strings.Contains(body, "\u200b") {
		t.Fatalf("control or format characters leaked into body: %q", body)
	}
	if !strings.Contains(body, "Kim Lee님") {
		t.Fatalf("user name not sanitized as expected:\n%s", body)
	}

	lines := strings.Split(body, "\n")
	skeletonLines := strings.Split(DefaultMessageSkeleton, "\n")
	if len(lines) != len(skeletonLines) {
		t.Fatalf("rendered body has %d lines, skeleton has %d", len(lines), len(skeletonLines))
	}
}

func TestRenderKeepsTemplateSyntaxLiteral(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t)

	in := sampleInput()
	in.UserName = "{{.UserID}}"

	tpl, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(tpl.Messages[0].SMSContent, "{{.UserID}}님") {
		t.Fatalf("template syntax in input should be rendered literally:\n%s", tpl.Messages[0].SMSContent)
	}
}

func TestRenderRoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t)

	in := sampleInput()
	in.ShopName = `Shop "A" & <B>`
	in.UserName = "김철수"

	tpl, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	payload, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded domain.AlarmTemplate
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	if decoded.TemplateID != tpl.TemplateID || decoded.UserID != tpl.UserID || decoded.APIKey != tpl.APIKey {
		t.Fatalf("header fields changed: got %+v want %+v", decoded, *tpl)
	}
	got, want := decoded.Messages[0], tpl.Messages[0]
	if got.MsgContent != want.MsgContent || got.SMSContent != want.SMSContent || got.TelNum != want.TelNum {
		t.Fatalf("message changed after round trip:\ngot  %+v\nwant %+v", got, want)
	}
	if !strings.Contains(got.MsgContent, `[Shop "A" & <B>]`) {
		t.Fatalf("shop name lost in round trip:\n%s", got.MsgContent)
	}
	if !strings.Contains(got.MsgContent, "김철수님") {
		t.Fatalf("korean name lost in round trip:\n%s", got.MsgContent)
	}
}

func TestRenderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RenderInput)
	}{
		{name: "empty shop name", mutate: func(in *RenderInput) { in.ShopName = " \n " }},
		{name: "empty user name", mutate: func(in *RenderInput) { in.UserName = "" }},
		{name: "empty user id", mutate: func(in *RenderInput) { in.UserID = "" }},
		{name: "letters in tel", mutate: func(in *RenderInput) { in.Tel = "010-CALL-ME" }},
		{name: "short tel", mutate: func(in *RenderInput) { in.Tel = "1234" }},
		{name: "empty send phone", mutate: func(in *RenderInput) { in.SendPhone = "" }},
		{name: "relative url", mutate: func(in *RenderInput) { in.URL = "www.sustable.kr" }},
		{name: "javascript url", mutate: func(in *RenderInput) { in.URL = "javascript:alert(1)" }},
	}

	r := newTestRenderer(t)

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := sampleInput()
			tt.mutate(&in)

			_, err := r.Render(in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Render() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRenderBodyLimit(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(Config{
		Credentials: Credentials{ClientID: "id", ClientSecret: "secret"},
		TemplateID:  1,
		Limits:      domain.Limits{MaxMessageLength: 50, MaxSMSLength: 500},
	})
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	_, err = r.Render(sampleInput())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Render() error = %v, want ErrValidation", err)
	}
}

func TestRenderWithTemplateIDOverride(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t)

	tpl, err := r.RenderWithTemplateID(30001, sampleInput())
	if err != nil {
		t.Fatalf("RenderWithTemplateID() error = %v", err)
	}
	if tpl.TemplateID != 30001 {
		t.Fatalf("TemplateID = %d, want 30001", tpl.TemplateID)
	}

	tpl, err = r.RenderWithTemplateID(0, sampleInput())
	if err != nil {
		t.Fatalf("RenderWithTemplateID() error = %v", err)
	}
	if tpl.TemplateID != r.TemplateID() {
		t.Fatalf("TemplateID = %d, want fallback %d", tpl.TemplateID, r.TemplateID())
	}
}

func TestNewRendererValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRenderer(Config{TemplateID: 1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewRenderer() error = %v, want ErrValidation", err)
	}
	if _, err := NewRenderer(Config{Credentials: Credentials{ClientID: "a", ClientSecret: "b"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewRenderer() error = %v, want ErrValidation", err)
	}
	if _, err := NewRenderer(Config{
		Credentials:     Credentials{ClientID: "a", ClientSecret: "b"},
		TemplateID:      1,
		MessageSkeleton: "{{.ShopName",
	}); err == nil {
		t.Fatal("expected parse error for broken skeleton")
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "01045299453", want: "01045299453"},
		{input: "010-4529-9453", want: "01045299453"},
		{input: "+82 10-4529-9453", want: "01045299453"},
		{input: "(02) 123.4567", want: "021234567"},
	}

	for _, tt := range tests {
		got, err := normalizePhone(tt.input, "tel")
		if err != nil {
			t.Fatalf("normalizePhone(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("normalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
