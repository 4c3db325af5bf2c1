package domain

import "fmt"

// AttachmentKind names a file produced by an upload before a step commit.
type AttachmentKind string

const (
	AttachmentSkillImage   AttachmentKind = "skill_image"
	AttachmentIdentity     AttachmentKind = "identity"
	AttachmentRegistration AttachmentKind = "registration"
	AttachmentServiceImage AttachmentKind = "service_image"
)

var attachmentSteps = map[AttachmentKind]StepID{
	AttachmentSkillImage:   StepSkills,
	AttachmentIdentity:     StepDocs,
	AttachmentRegistration: StepDocs,
	AttachmentServiceImage: StepDocs,
}

// ParseAttachmentKind validates a raw attachment kind.
func ParseAttachmentKind(s string) (AttachmentKind, error) {
	k := AttachmentKind(s)
	if _, ok := attachmentSteps[k]; !ok {
		return "", fmt.Errorf("unknown attachment kind %q", s)
	}
	return k, nil
}

// Step returns the step whose commit carries this attachment.
func (k AttachmentKind) Step() StepID { return attachmentSteps[k] }

// Attachments maps an attachment kind to its uploaded URL.
type Attachments map[AttachmentKind]string

// StepPayload is the body committed for one onboarding step.
type StepPayload interface {
	Step() StepID
	// WithAttachments returns a copy whose empty derived fields are filled
	// from a.
	WithAttachments(a Attachments) StepPayload
}

type PersonalPayload struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"  validate:"required"`
	Phone     string `json:"phone"     validate:"required"`
	Bio       string `json:"bio"`
}

func (p PersonalPayload) Step() StepID                            { return StepPersonal }
func (p PersonalPayload) WithAttachments(Attachments) StepPayload { return p }

type BusinessPayload struct {
	CompanyName string `json:"companyName" validate:"required"`
	Plan        string `json:"plan"        validate:"required,oneof=basic pro premium"`
}

func (p BusinessPayload) Step() StepID                            { return StepBusiness }
func (p BusinessPayload) WithAttachments(Attachments) StepPayload { return p }

type SkillsPayload struct {
	Category   string   `json:"category"   validate:"required"`
	Experience string   `json:"experience" validate:"required"`
	Skills     []string `json:"skills"     validate:"required,min=1,dive,required"`
	ImageURL   string   `json:"imageUrl"   validate:"required,url"`
}

func (p SkillsPayload) Step() StepID { return StepSkills }

func (p SkillsPayload) WithAttachments(a Attachments) StepPayload {
	if p.ImageURL == "" {
		p.ImageURL = a[AttachmentSkillImage]
	}
	return p
}

type DocsPayload struct {
	IdentityURL     string `json:"identityUrl"     validate:"required,url"`
	RegistrationURL string `json:"registrationUrl" validate:"required,url"`
	ServiceImageURL string `json:"serviceImageUrl" validate:"required,url"`
}

func (p DocsPayload) Step() StepID { return StepDocs }

func (p DocsPayload) WithAttachments(a Attachments) StepPayload {
	if p.IdentityURL == "" {
		p.IdentityURL = a[AttachmentIdentity]
	}
	if p.RegistrationURL == "" {
		p.RegistrationURL = a[AttachmentRegistration]
	}
	if p.ServiceImageURL == "" {
		p.ServiceImageURL = a[AttachmentServiceImage]
	}
	return p
}

type BankingPayload struct {
	AccountHolder string `json:"accountHolder" validate:"required"`
	IBAN          string `json:"iban"          validate:"required"`
	BIC           string `json:"bic"           validate:"required"`
}

func (p BankingPayload) Step() StepID                            { return StepBanking }
func (p BankingPayload) WithAttachments(Attachments) StepPayload { return p }

// NewPayload returns an empty payload of the type committed by step s.
func NewPayload(s StepID) (StepPayload, error) {
	switch s {
	case StepPersonal:
		return &PersonalPayload{}, nil
	case StepBusiness:
		return &BusinessPayload{}, nil
	case StepSkills:
		return &SkillsPayload{}, nil
	case StepDocs:
		return &DocsPayload{}, nil
	case StepBanking:
		return &BankingPayload{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStep, s)
}
