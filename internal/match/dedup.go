package match

// ClaimReason explains a rejected claim.
type ClaimReason string

// DuplicateClaim is the only reason a claim is rejected.
const DuplicateClaim ClaimReason = "duplicate_claim"

// ClaimResult is the answer to a claim request.
type ClaimResult struct {
	Accepted bool
	Reason   ClaimReason
	Holder   string // identity that holds the key
}

// RejectedClaim records a profile that lost a boundary to an earlier claim.
type RejectedClaim struct {
	BoundaryKey string `json:"boundary_key"`
	Holder      string `json:"holder"`
	Rejected    string `json:"rejected"`
	RejectedAs  string `json:"rejected_name"`
	Strategy    string `json:"strategy"`
}

// Deduplicator enforces at most one claim per boundary key within a run.
// A run owns its deduplicator; it is not safe for concurrent use.
type Deduplicator struct {
	holders  map[string]string
	claims   map[string]ScrapedProfile
	rejected []RejectedClaim
}

// NewDeduplicator creates an empty claim set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		holders: make(map[string]string),
		claims:  make(map[string]ScrapedProfile),
	}
}

// Claim assigns boundaryKey to profile. The first claim wins. A later claim
// by a different identity is rejected and recorded; a repeated claim by the
// holder itself is accepted without being counted.
func (d *Deduplicator) Claim(boundaryKey string, profile ScrapedProfile, strategy Strategy) ClaimResult {
	identity := profile.Identity()

	if holder, ok := d.holders[boundaryKey]; ok {
		if holder == identity {
			return ClaimResult{Accepted: true, Holder: holder}
		}
		d.rejected = append(d.rejected, RejectedClaim{
			BoundaryKey: boundaryKey,
			Holder:      holder,
			Rejected:    identity,
			RejectedAs:  profile.RawDisplayName,
			Strategy:    string(strategy),
		})
		return ClaimResult{Accepted: false, Reason: DuplicateClaim, Holder: holder}
	}

	d.holders[boundaryKey] = identity
	d.claims[boundaryKey] = profile
	return ClaimResult{Accepted: true, Holder: identity}
}

// Holder returns the profile holding boundaryKey.
func (d *Deduplicator) Holder(boundaryKey string) (ScrapedProfile, bool) {
	p, ok := d.claims[boundaryKey]
	return p, ok
}

// Rejected returns the rejected claims in the order they happened.
func (d *Deduplicator) Rejected() []RejectedClaim {
	out := make([]RejectedClaim, len(d.rejected))
	copy(out, d.rejected)
	return out
}

// Claimed returns how many boundary keys are held.
func (d *Deduplicator) Claimed() int {
	return len(d.holders)
}
