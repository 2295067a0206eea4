package bucket

import "testing"

func TestScanTerminator(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		mask       LineMask
		atEOF      bool
		wantFound  Found
		wantConLen int
	}{
		{"crlf", "abc\r\ndef", MaskCRLF, false, FoundCRLF, 5},
		{"bare lf", "abc\ndef", MaskCRLF, false, FoundLF, 4},
		{"bare cr followed by non-lf", "abc\rdef", MaskCRLF, false, FoundCR, 4},
		{"trailing cr not at eof", "abc\r", MaskCRLF, false, FoundCRLFSplit, 4},
		{"trailing cr at eof", "abc\r", MaskCRLF, true, FoundCR, 4},
		{"cr masked out, lf still found", "abc\rdef\n", MaskLF, false, FoundLF, 8},
		{"no terminator", "abcdef", MaskCRLF, false, FoundNone, 6},
		{"lf masked out, cr stands alone", "abc\ndef\r", MaskCR, true, FoundCR, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, consumed, found := scanTerminator([]byte(tt.data), tt.mask, tt.atEOF)
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if consumed != tt.wantConLen {
				t.Errorf("consumed = %d, want %d", consumed, tt.wantConLen)
			}
		})
	}
}
