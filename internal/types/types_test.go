package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "checksummed address is lowercased",
			input:  "0x52908400098527886E0F7030069857D2E4169EE7",
			want:   "0x52908400098527886e0f7030069857d2e4169ee7",
			wantOK: true,
		},
		{
			name:   "surrounding whitespace is trimmed",
			input:  "  0xde709f2102306220921060314715629080e2fb77 ",
			want:   "0xde709f2102306220921060314715629080e2fb77",
			wantOK: true,
		},
		{
			name:   "referral code is rejected",
			input:  "MEMES-ABC123",
			wantOK: false,
		},
		{
			name:   "short hex is rejected",
			input:  "0x1234",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeAddress(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeAddress(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTaskValid(t *testing.T) {
	for _, task := range AllTasks {
		if !task.Valid() {
			t.Errorf("Task(%q).Valid() = false, want true", task)
		}
	}
	if Task("retweet").Valid() {
		t.Error("Task(\"retweet\").Valid() = true, want false")
	}
}

func TestIsZeroAddress(t *testing.T) {
	if !IsZeroAddress(common.Address{}) {
		t.Error("empty address should be the sentinel")
	}
	if IsZeroAddress(common.HexToAddress("0x01")) {
		t.Error("non-empty address reported as sentinel")
	}
}
