package ir

// DeliveryType is the kind of a delivery model.
type DeliveryType string

const (
	DeliveryStandard   DeliveryType = "standard"
	DeliveryGuaranteed DeliveryType = "guaranteed"
	DeliveryBroadcast  DeliveryType = "broadcast"
)

// ValidDeliveryTypes defines allowed model types.
var ValidDeliveryTypes = map[DeliveryType]bool{
	DeliveryStandard:   true,
	DeliveryGuaranteed: true,
	DeliveryBroadcast:  true,
}

// DeliveryModelSpec declares a delivery model. A nil ProcessID marks the
// global default; a set ProcessID overrides the default for that sender only.
type DeliveryModelSpec struct {
	Type      DeliveryType      `json:"model_type"`
	Params    map[string]string `json:"params,omitempty"`
	ProcessID *int              `json:"process_id,omitempty"`
}

// IsGlobal reports whether the spec is the global default.
func (s DeliveryModelSpec) IsGlobal() bool {
	return s.ProcessID == nil
}

// GlobalModels returns the specs without a process id.
func (p *ProtocolIR) GlobalModels() []DeliveryModelSpec {
	var out []DeliveryModelSpec
	for _, s := range p.DeliveryModels {
		if s.IsGlobal() {
			out = append(out, s)
		}
	}
	return out
}

// Delivery model parameter keys as stored in DeliveryModelSpec.Params.
const (
	KeyMinMessages     = "min_messages"
	KeyScope           = "scope"
	KeyProbabilityMode = "probability_mode"
)

// Guaranteed scopes and broadcast probability modes.
const (
	ScopePerRound = "per_round"
	ScopeTotal    = "total"
	ModePerSource = "per_source"
	ModeUniform   = "uniform"
)
