package parfile

import "strings"

// splitFields splits one parameter record on commas. A field that opens with a
// double or single quote runs to the matching quote and may contain commas; an
// unclosed quote runs to the end of the line. Quotes anywhere else are literal.
// Each field is returned trimmed and without its enclosing quotes, together with
// whether it was quoted.
func splitFields(line string) (fields []string, quoted []bool) {
	i := 0
	n := len(line)
	for {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}

		var b strings.Builder
		isQuoted := false
		if i < n && (line[i] == '"' || line[i] == '\'') {
			isQuoted = true
			q := line[i]
			i++
			end := strings.IndexByte(line[i:], q)
			if end < 0 {
				b.WriteString(line[i:])
				i = n
			} else {
				b.WriteString(line[i : i+end])
				i += end + 1
			}
		}

		// Anything after a closing quote up to the separator belongs to the field.
		end := strings.IndexByte(line[i:], ',')
		if end < 0 {
			b.WriteString(line[i:])
			i = n
		} else {
			b.WriteString(line[i : i+end])
			i += end
		}

		fields = append(fields, strings.TrimSpace(b.String()))
		quoted = append(quoted, isQuoted)

		if i >= n {
			return fields, quoted
		}
		i++ // separator
	}
}
