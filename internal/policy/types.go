package policy

// detectionDocument is the on-disk shape of the structured detection-policy
// document. All detection settings live under the pii_detection namespace.
type detectionDocument struct {
	PIIDetection detectionSettings `json:"pii_detection"`
}

type detectionSettings struct {
	ConfidenceThreshold  *float64          `json:"confidence_threshold"`
	RedactionMode        string            `json:"redaction_mode"`
	RedactionTokens      map[string]string `json:"redaction_tokens"`
	Languages            []string          `json:"languages"`
	APITimeoutMs         int               `json:"api_timeout_ms"`
	RegexFallbackEnabled *bool             `json:"regex_fallback_enabled"`
	MaxTextLength        int               `json:"max_text_length"`
}

// ruleDocument is the on-disk shape of the legacy rule-list document. Rule
// names may differ from the canonical entity vocabulary; they are mapped
// through the alias table when the snapshot is built.
type ruleDocument struct {
	Rules []ruleEntry `json:"rules"`
	Order []string    `json:"order"`
}

type ruleEntry struct {
	Name         string `json:"name"`
	Pattern      string `json:"pattern"`
	Flags        string `json:"flags"`
	TargetEntity string `json:"target_entity"`
}
