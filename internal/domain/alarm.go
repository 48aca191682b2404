package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Body limits applied when the caller does not configure its own (in runes).
// The SMS fallback is never longer than the rich body it replaces.
const (
	DefaultMaxMessageLength = 1000
	DefaultMaxSMSLength     = 500
)

// SMS fallback flags understood by the provider.
const (
	UseSMSEnabled  = "1"
	UseSMSDisabled = "0"
)

// ButtonURL is the link attached to an alarm message button.
type ButtonURL struct {
	URLMobile string `json:"url_mobile"`
	URLPC     string `json:"url_pc"`
}

// Message is one recipient entry of an alarm template.
type Message struct {
	No         string      `json:"no"`
	TelNum     string      `json:"tel_num"`
	MsgContent string      `json:"msg_content"`
	SMSContent string      `json:"sms_content"`
	UseSMS     string      `json:"use_sms"`
	BtnURL     []ButtonURL `json:"btn_url,omitempty"`
}

// AlarmTemplate is the payload posted to the alarm provider.
type AlarmTemplate struct {
	UserID     string    `json:"userid"`
	APIKey     string    `json:"api_key"`
	TemplateID int       `json:"template_id"`
	Messages   []Message `json:"messages"`
}

// Limits bounds the body variants of a template.
type Limits struct {
	MaxMessageLength int
	MaxSMSLength     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageLength: DefaultMaxMessageLength,
		MaxSMSLength:     DefaultMaxSMSLength,
	}
}

func (t *AlarmTemplate) Validate() error {
	return t.ValidateWithLimits(DefaultLimits())
}

func (t *AlarmTemplate) ValidateWithLimits(limits Limits) error {
	if t == nil {
		return fmt.Errorf("%w: template is required", ErrValidation)
	}
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("%w: userid is required", ErrValidation)
	}
	if strings.TrimSpace(t.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrValidation)
	}
	return t.ValidateContent(limits)
}

// ValidateContent checks everything but the account credentials.
func (t *AlarmTemplate) ValidateContent(limits Limits) error {
	if t == nil {
		return fmt.Errorf("%w: template is required", ErrValidation)
	}
	if t.TemplateID <= 0 {
		return fmt.Errorf("%w: template_id must be positive (got %d)", ErrValidation, t.TemplateID)
	}
	if len(t.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrValidation)
	}

	if limits.MaxMessageLength <= 0 {
		limits.MaxMessageLength = DefaultMaxMessageLength
	}
	if limits.MaxSMSLength <= 0 {
		limits.MaxSMSLength = DefaultMaxSMSLength
	}

	for i := range t.Messages {
		if err := t.Messages[i].validate(limits); err != nil {
			return fmt.Errorf("message %d: %w", i+1, err)
		}
	}

	return nil
}

func (m *Message) validate(limits Limits) error {
	if strings.TrimSpace(m.TelNum) == "" {
		return fmt.Errorf("%w: tel_num is required", ErrValidation)
	}
	if strings.TrimSpace(m.MsgContent) == "" {
		return fmt.Errorf("%w: msg_content is required", ErrValidation)
	}
	if !utf8.ValidString(m.MsgContent) || !utf8.ValidString(m.SMSContent) {
		return fmt.Errorf("%w: message content must be valid UTF-8", ErrValidation)
	}

	if n := utf8.RuneCountInString(m.MsgContent); n > limits.MaxMessageLength {
		return fmt.Errorf("%w: msg_content exceeds %d characters (got %d)", ErrValidation, limits.MaxMessageLength, n)
	}

	switch m.UseSMS {
	case UseSMSEnabled:
		if strings.TrimSpace(m.SMSContent) == "" {
			return fmt.Errorf("%w: sms_content is required when use_sms is enabled", ErrValidation)
		}
	case UseSMSDisabled, "":
	default:
		return fmt.Errorf("%w: invalid use_sms %q", ErrValidation, m.UseSMS)
	}

	if n := utf8.RuneCountInString(m.SMSContent); n > limits.MaxSMSLength {
		return fmt.Errorf("%w: sms_content exceeds %d characters (got %d)", ErrValidation, limits.MaxSMSLength, n)
	}

	return nil
}

// Recipient returns the first message's phone number, or "" when empty.
func (t *AlarmTemplate) Recipient() string {
	if t == nil || len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[0].TelNum
}

// AlarmTest is the input of the gateway self-test.
type AlarmTest struct {
	TemplateID int    `json:"template_id"`
	ShopName   string `json:"shop_name"`
	UserName   string `json:"user_name"`
	UserID     string `json:"user_id"`
	TelNo      string `json:"tel_no"`
	URL        string `json:"url"`
	SendPhone  string `json:"send_phone"`
}

// MaskPhone keeps the last four digits of a phone number for logging.
func MaskPhone(tel string) string {
	runes := []rune(strings.TrimSpace(tel))
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
