package feedback

// Messages is the strings table shown to respondents. Prompt strings are used
// by the presentation layer; the rest are the error messages of Submit.
type Messages struct {
	Prompt         string `yaml:"prompt" json:"prompt" jsonschema:"description=Question shown above the accept/decline buttons"`
	Accept         string `yaml:"accept" json:"accept" jsonschema:"description=Label of the accept button"`
	Decline        string `yaml:"decline" json:"decline" jsonschema:"description=Label of the decline button"`
	PromptResponse string `yaml:"prompt_response" json:"prompt_response" jsonschema:"description=Acknowledgement after the binary choice"`
	AcceptPrompt   string `yaml:"accept_prompt" json:"accept_prompt" jsonschema:"description=Follow-up question after accept"`
	DeclinePrompt  string `yaml:"decline_prompt" json:"decline_prompt" jsonschema:"description=Follow-up question after decline"`
	FinalResponse  string `yaml:"final_response" json:"final_response" jsonschema:"description=Thank-you text after the elaboration"`

	ErrUnauthenticated string `yaml:"err_unauthenticated" json:"err_unauthenticated"`
	ErrInvalidToken    string `yaml:"err_invalid_token" json:"err_invalid_token"`
	ErrInvalidDocument string `yaml:"err_invalid_document" json:"err_invalid_document"`
	ErrInvalidRecord   string `yaml:"err_invalid_record" json:"err_invalid_record"`
	ErrMissingRecord   string `yaml:"err_missing_record" json:"err_missing_record"`
	ErrForbidden       string `yaml:"err_forbidden" json:"err_forbidden"`
	ErrNotCreated      string `yaml:"err_not_created" json:"err_not_created"`
	ErrNotUpdated      string `yaml:"err_not_updated" json:"err_not_updated"`
	ErrInvalidRequest  string `yaml:"err_invalid_request" json:"err_invalid_request"`
	ErrAlreadyAnswered string `yaml:"err_already_answered" json:"err_already_answered"`
	ErrThrottled       string `yaml:"err_throttled" json:"err_throttled"`
	ErrUnavailable     string `yaml:"err_unavailable" json:"err_unavailable"`
	ErrRateLimited     string `yaml:"err_rate_limited" json:"err_rate_limited"`
}

// DefaultMessages returns the built-in English strings.
func DefaultMessages() Messages {
	return Messages{
		Prompt:         "Did this document answer your question?",
		Accept:         "Yes",
		Decline:        "No",
		PromptResponse: "Thanks for responding.",
		AcceptPrompt:   "What details were useful to you?",
		DeclinePrompt:  "What details are you still looking for?",
		FinalResponse:  "Thanks for the feedback! We'll use it to improve our documentation.",

		ErrUnauthenticated: "You need to be logged in to submit feedback.",
		ErrInvalidToken:    "Security token mismatch. Are you sure you are who you say you are?",
		ErrInvalidDocument: "Invalid document for feedback.",
		ErrInvalidRecord:   "Invalid comment.",
		ErrMissingRecord:   "Invalid comment entry.",
		ErrForbidden:       "Invalid user ID for comment.",
		ErrNotCreated:      "Comment not created.",
		ErrNotUpdated:      "Comment not updated.",
		ErrInvalidRequest:  "Invalid feedback submission.",
		ErrAlreadyAnswered: "You have already left feedback on this document.",
		ErrThrottled:       "You have already left feedback on this document recently.",
		ErrUnavailable:     "Feedback is temporarily unavailable. Please try again later.",
		ErrRateLimited:     "Too many feedback submissions. Please slow down.",
	}
}

// Merge returns m with every empty field filled from defaults.
func (m Messages) Merge(defaults Messages) Messages {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&m.Prompt, defaults.Prompt)
	fill(&m.Accept, defaults.Accept)
	fill(&m.Decline, defaults.Decline)
	fill(&m.PromptResponse, defaults.PromptResponse)
	fill(&m.AcceptPrompt, defaults.AcceptPrompt)
	fill(&m.DeclinePrompt, defaults.DeclinePrompt)
	fill(&m.FinalResponse, defaults.FinalResponse)
	fill(&m.ErrUnauthenticated, defaults.ErrUnauthenticated)
	fill(&m.ErrInvalidToken, defaults.ErrInvalidToken)
	fill(&m.ErrInvalidDocument, defaults.ErrInvalidDocument)
	fill(&m.ErrInvalidRecord, defaults.ErrInvalidRecord)
	fill(&m.ErrMissingRecord, defaults.ErrMissingRecord)
	fill(&m.ErrForbidden, defaults.ErrForbidden)
	fill(&m.ErrNotCreated, defaults.ErrNotCreated)
	fill(&m.ErrNotUpdated, defaults.ErrNotUpdated)
	fill(&m.ErrInvalidRequest, defaults.ErrInvalidRequest)
	fill(&m.ErrAlreadyAnswered, defaults.ErrAlreadyAnswered)
	fill(&m.ErrThrottled, defaults.ErrThrottled)
	fill(&m.ErrUnavailable, defaults.ErrUnavailable)
	fill(&m.ErrRateLimited, defaults.ErrRateLimited)
	return m
}

// PromptStrings is the subset the presentation layer needs to render the form.
func (m Messages) PromptStrings() map[string]string {
	return map[string]string{
		"prompt":          m.Prompt,
		"accept":          m.Accept,
		"decline":         m.Decline,
		"prompt_response": m.PromptResponse,
		"accept_prompt":   m.AcceptPrompt,
		"decline_prompt":  m.DeclinePrompt,
		"final_response":  m.FinalResponse,
	}
}
