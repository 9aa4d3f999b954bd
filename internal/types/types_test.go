package types

import "testing"

func TestParseTrustVerdict(t *testing.T) {
	tests := []struct {
		input   string
		want    TrustVerdict
		wantErr bool
	}{
		{"auto-safe", VerdictAutoSafe, false},
		{"needs-human-approval", VerdictNeedsApproval, false},
		{"reject", VerdictReject, false},
		{"", "", true},
		{"safe", "", true},
		{"AUTO-SAFE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTrustVerdict(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrustVerdict(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTrustVerdict(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRunSummary_Add(t *testing.T) {
	total := RunSummary{}
	total.Add(RunSummary{TargetsCrawled: 2, PostingsSeen: 6, PostingsInserted: 5, DomainsScored: 1})
	total.Add(RunSummary{PostingsSeen: 5, PostingsInserted: 5, DomainsScored: 2})

	if total.TargetsCrawled != 2 {
		t.Errorf("TargetsCrawled = %d, want 2", total.TargetsCrawled)
	}
	if total.PostingsSeen != 11 {
		t.Errorf("PostingsSeen = %d, want 11", total.PostingsSeen)
	}
	if total.PostingsInserted != 10 {
		t.Errorf("PostingsInserted = %d, want 10", total.PostingsInserted)
	}
	if total.DomainsScored != 3 {
		t.Errorf("DomainsScored = %d, want 3", total.DomainsScored)
	}
}
