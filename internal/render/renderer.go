// Package render fills alarm message skeletons from shop and user fields.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

// DefaultMessageSkeleton is the rich (KakaoTalk) body registered with the provider.
const DefaultMessageSkeleton = `[{{.ShopName}}]
안녕하세요. {{.UserName}}님!

회원 가입을 진심으로 환영합니다. (축하)
{{.UserName}}님의 회원가입이 정상적으로 완료되었습니다.

{{.UserName}}님의
[{{.ShopName}}] ID : {{.UserID}}

{{.UserName}}님께 더 좋은 서비스를 드리기 위해 노력하겠습니다.
앞으로 많은 이용 부탁드립니다. (하트)


▶ {{.ShopName}} 바로가기
{{.URL}}
고객센터
({{.SendPhone}})`

// DefaultSMSSkeleton is the SMS fallback body sent when KakaoTalk delivery fails.
const DefaultSMSSkeleton = `[{{.ShopName}}] {{.UserName}}님, 회원가입이 완료되었습니다.
ID : {{.UserID}}
{{.URL}}
고객센터 ({{.SendPhone}})`

// RenderInput holds the untrusted fields substituted into a skeleton.
type RenderInput struct {
	ShopName  string
	UserName  string
	UserID    string
	Tel       string
	URL       string
	SendPhone string
}

// Credentials identify the account the rendered template is sent from.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

type Config struct {
	Credentials     Credentials
	TemplateID      int
	Limits          domain.Limits
	MessageSkeleton string
	SMSSkeleton     string
	MaxFieldLength  int
	UseSMS          bool
}

// Renderer builds AlarmTemplates from a fixed pair of skeletons.
type Renderer struct {
	credentials    Credentials
	templateID     int
	limits         domain.Limits
	maxFieldLength int
	useSMS         bool
	message        *template.Template
	sms            *template.Template
}

type skeletonData struct {
	ShopName  string
	UserName  string
	UserID    string
	URL       string
	SendPhone string
}

func NewRenderer(cfg Config) (*Renderer, error) {
	if strings.TrimSpace(cfg.Credentials.ClientID) == "" || strings.TrimSpace(cfg.Credentials.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", domain.ErrValidation)
	}
	if cfg.TemplateID <= 0 {
		return nil, fmt.Errorf("%w: template id must be positive (got %d)", domain.ErrValidation, cfg.TemplateID)
	}

	messageSkeleton := cfg.MessageSkeleton
	if strings.TrimSpace(messageSkeleton) == "" {
		messageSkeleton = DefaultMessageSkeleton
	}
	smsSkeleton := cfg.SMSSkeleton
	if strings.TrimSpace(smsSkeleton) == "" {
		smsSkeleton = DefaultSMSSkeleton
	}

	message, err := template.New("message").Option("missingkey=error").Parse(messageSkeleton)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message skeleton: %w", err)
	}
	sms, err := template.New("sms").Option("missingkey=error").Parse(smsSkeleton)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sms skeleton: %w", err)
	}

	limits := cfg.Limits
	if limits.MaxMessageLength <= 0 {
		limits.MaxMessageLength = domain.DefaultMaxMessageLength
	}
	if limits.MaxSMSLength <= 0 {
		limits.MaxSMSLength = domain.DefaultMaxSMSLength
	}
	maxFieldLength := cfg.MaxFieldLength
	if maxFieldLength <= 0 {
		maxFieldLength = defaultMaxFieldLength
	}

	return &Renderer{
		credentials:    cfg.Credentials,
		templateID:     cfg.TemplateID,
		limits:         limits,
		maxFieldLength: maxFieldLength,
		useSMS:         cfg.UseSMS,
		message:        message,
		sms:            sms,
	}, nil
}

// TemplateID returns the template id stamped on rendered templates.
func (r *Renderer) TemplateID() int {
	return r.templateID
}

func (r *Renderer) Credentials() Credentials {
	return r.credentials
}

// Render builds a template with the renderer's configured template id.
func (r *Renderer) Render(in RenderInput) (*domain.AlarmTemplate, error) {
	return r.RenderWithTemplateID(r.templateID, in)
}

func (r *Renderer) RenderWithTemplateID(templateID int, in RenderInput) (*domain.AlarmTemplate, error) {
	if r == nil || r.message == nil || r.sms == nil {
		return nil, fmt.Errorf("renderer is not initialized")
	}
	if templateID <= 0 {
		templateID = r.templateID
	}

	data, tel, err := r.prepare(in)
	if err != nil {
		return nil, err
	}

	msgContent, err := execute(r.message, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render message body: %w", err)
	}
	smsContent, err := execute(r.sms, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render sms body: %w", err)
	}

	useSMS := domain.UseSMSDisabled
	if r.useSMS {
		useSMS = domain.UseSMSEnabled
	}

	tpl := &domain.AlarmTemplate{
		UserID:     r.credentials.ClientID,
		APIKey:     r.credentials.ClientSecret,
		TemplateID: templateID,
		Messages: []domain.Message{
			{
				No:         "1",
				TelNum:     tel,
				MsgContent: msgContent,
				SMSContent: smsContent,
				UseSMS:     useSMS,
				BtnURL: []domain.ButtonURL{
					{URLMobile: data.URL, URLPC: data.URL},
				},
			},
		},
	}

	if err := tpl.ValidateWithLimits(r.limits); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (r *Renderer) prepare(in RenderInput) (skeletonData, string, error) {
	shopName := sanitizeText(in.ShopName, r.maxFieldLength)
	if shopName == "" {
		return skeletonData{}, "", fmt.Errorf("%w: shop name is required", domain.ErrValidation)
	}
	userName := sanitizeText(in.UserName, r.maxFieldLength)
	if userName == "" {
		return skeletonData{}, "", fmt.Errorf("%w: user name is required", domain.ErrValidation)
	}
	userID := sanitizeText(in.UserID, r.maxFieldLength)
	if userID == "" {
		return skeletonData{}, "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	tel, err := normalizePhone(in.Tel, "tel")
	if err != nil {
		return skeletonData{}, "", err
	}
	sendPhone, err := normalizePhone(in.SendPhone, "send phone")
	if err != nil {
		return skeletonData{}, "", err
	}
	link, err := normalizeURL(in.URL)
	if err != nil {
		return skeletonData{}, "", err
	}

	return skeletonData{
		ShopName:  shopName,
		UserName:  userName,
		UserID:    userID,
		URL:       link,
		SendPhone: sendPhone,
	}, tel, nil
}

func execute(tmpl *template.Template, data skeletonData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
