package entity

// SamplingRequest is built by the caller at invocation time and passed by value.
type SamplingRequest struct {
	SourcePath string
	OutputDir  string
	Rate       RateSelector
	// Resolution is a catalog name, a "WxH" pair or empty/"native".
	// Eligibility against the source is the caller's concern.
	Resolution string
	Format     string
}
