package bucket

// scanTerminator looks for the first acceptable line terminator in data,
// honoring mask the way spec.md §4.1 describes: terminator kinds outside
// the mask are not reported and the scan continues through them.
//
// atEOF tells the scanner that data is everything the source will ever
// produce, which lets it resolve a trailing lone CR to FoundCR instead of
// FoundCRLFSplit — see the Open Question resolution in SPEC_FULL.md.
//
// Returns the length of the line content (excluding the terminator) and
// the total consumed length (including the terminator, if any).
func scanTerminator(data []byte, mask LineMask, atEOF bool) (contentLen, consumedLen int, found Found) {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				if mask&MaskLF != 0 || mask&MaskCR != 0 {
					return i, i + 2, FoundCRLF
				}
				continue
			}
			if i+1 == len(data) {
				// Terminating CR at the end of currently visible data.
				if mask&MaskCR == 0 {
					continue
				}
				if atEOF {
					return i, i + 1, FoundCR
				}
				return i, i + 1, FoundCRLFSplit
			}
			// Bare CR followed by a non-LF byte.
			if mask&MaskCR != 0 {
				return i, i + 1, FoundCR
			}
		case '\n':
			if mask&MaskLF != 0 {
				return i, i + 1, FoundLF
			}
		}
	}
	return len(data), len(data), FoundNone
}
