package bccr

import (
	"bytes"
	"encoding/xml"
	"html"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"golang.org/x/net/html/charset"
)

// Tag names of the upstream DataSet schema. These must match the service exactly.
const (
	RecordTag = "INGC011_CAT_INDICADORECONOMIC"
	CodeTag   = "COD_INDICADORINTERNO"
	DateTag   = "DES_FECHA"
	ValueTag  = "NUM_VALOR"
)

const (
	recordOpen    = "<" + RecordTag
	recordClose   = "</" + RecordTag
	escapedRecord = "&lt;" + RecordTag
)

var (
	encodingDecl = regexp.MustCompile(`^\s*<\?xml[^>]*?\bencoding\s*=\s*["']([^"']+)["']`)
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

// ExtractRecords pulls one record per INGC011_CAT_INDICADORECONOMIC block out of
// payload, in document order. Blocks without a NUM_VALOR field are skipped.
// Each block is located by its tags and decoded on its own, so damage in the
// surrounding text costs nothing and damage inside a block drops only that
// block. A block cut off by truncation is dropped.
func ExtractRecords(payload string) []domain.IndicatorRecord {
	return extract(payload, true)
}

// ExtractRecordsBytes is ExtractRecords for raw response bodies. The body is
// converted to UTF-8 first, following a byte order mark or the encoding named
// in the XML declaration.
func ExtractRecordsBytes(body []byte) []domain.IndicatorRecord {
	return ExtractRecords(decodeBody(body))
}

func decodeBody(body []byte) string {
	if len(body) >= 2 && (body[0] == 0xFE && body[1] == 0xFF || body[0] == 0xFF && body[1] == 0xFE) {
		r, err := charset.NewReader(bytes.NewReader(body), "text/xml")
		if err != nil {
			return string(body)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return string(body)
		}
		return string(out)
	}
	body = bytes.TrimPrefix(body, utf8BOM)

	m := encodingDecl.FindSubmatch(body)
	if m == nil {
		return string(body)
	}
	label := strings.ToLower(strings.TrimSpace(string(m[1])))
	// A declaration readable as ASCII rules out UTF-16 whatever it claims.
	if label == "utf-8" || label == "utf8" || strings.HasPrefix(label, "utf-16") {
		return string(body)
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func extract(payload string, unwrap bool) []domain.IndicatorRecord {
	records := make([]domain.IndicatorRecord, 0)

	escaped := -1
	if unwrap {
		escaped = indexTag(payload, escapedRecord, 0)
	}

	pos := 0
	for pos < len(payload) {
		open := indexTag(payload, recordOpen, pos)
		if escaped >= 0 && escaped < pos {
			escaped = indexTag(payload, escapedRecord, pos)
		}

		if escaped >= 0 && (open < 0 || escaped < open) {
			// The *XML flavoured service methods return the DataSet escaped inside <string>.
			end := strings.IndexByte(payload[escaped:], '<')
			if end < 0 {
				end = len(payload)
			} else {
				end += escaped
			}
			records = append(records, extract(html.UnescapeString(payload[escaped:end]), false)...)
			pos = end
			continue
		}
		if open < 0 {
			break
		}

		closeAt := indexTag(payload, recordClose, open+len(recordOpen))
		if closeAt < 0 {
			break
		}
		// An unclosed or self-closed block yields to the next start tag before the close.
		if next := indexTag(payload, recordOpen, open+len(recordOpen)); next >= 0 && next < closeAt {
			pos = next
			continue
		}
		end := strings.IndexByte(payload[closeAt:], '>')
		if end < 0 {
			break
		}
		end += closeAt + 1

		if rec, ok := decodeBlock(payload[open:end]); ok {
			records = append(records, rec)
		}
		pos = end
	}
	return records
}

// indexTag finds tag at or after from where it is followed by a name
// terminator, so longer names sharing the prefix are skipped.
func indexTag(s, tag string, from int) int {
	for from < len(s) {
		i := strings.Index(s[from:], tag)
		if i < 0 {
			return -1
		}
		i += from
		after := i + len(tag)
		if after >= len(s) {
			return -1
		}
		switch s[after] {
		case '>', '/', ' ', '\t', '\r', '\n':
			return i
		}
		if strings.HasPrefix(s[after:], "&gt;") {
			return i
		}
		from = after
	}
	return -1
}

// decodeBlock decodes one complete record block.
func decodeBlock(segment string) (domain.IndicatorRecord, bool) {
	dec := xml.NewDecoder(strings.NewReader(segment))
	dec.Strict = false
	dec.CharsetReader = passthroughCharset

	tok, err := dec.Token()
	if err != nil {
		return domain.IndicatorRecord{}, false
	}
	if start, ok := tok.(xml.StartElement); !ok || start.Name.Local != RecordTag {
		return domain.IndicatorRecord{}, false
	}
	fields, complete := readBlock(dec)
	if !complete {
		return domain.IndicatorRecord{}, false
	}
	return fields.record()
}

func passthroughCharset(_ string, r io.Reader) (io.Reader, error) { return r, nil }

type blockFields struct {
	code, date, value          string
	hasCode, hasDate, hasValue bool
}

// readBlock consumes tokens up to and including the end tag of the current
// record block. It reports false when the document ends inside the block.
func readBlock(dec *xml.Decoder) (blockFields, bool) {
	var (
		f        blockFields
		depth    int
		field    string
		fieldAt  int
		captured strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return f, false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if field == "" && f.wants(t.Name.Local) {
				field, fieldAt = t.Name.Local, depth
				captured.Reset()
			}
		case xml.EndElement:
			if depth == 0 {
				return f, true
			}
			if field != "" && depth == fieldAt {
				f.set(field, captured.String())
				field = ""
			}
			depth--
		case xml.CharData:
			if field != "" {
				captured.Write(t)
			}
		}
	}
}

// wants reports whether name is a field tag not yet captured; first occurrence wins.
func (f *blockFields) wants(name string) bool {
	switch name {
	case CodeTag:
		return !f.hasCode
	case DateTag:
		return !f.hasDate
	case ValueTag:
		return !f.hasValue
	}
	return false
}

func (f *blockFields) set(name, text string) {
	text = strings.TrimSpace(text)
	switch name {
	case CodeTag:
		f.code, f.hasCode = text, true
	case DateTag:
		f.date, f.hasDate = text, true
	case ValueTag:
		f.value, f.hasValue = text, true
	}
}

func (f blockFields) record() (domain.IndicatorRecord, bool) {
	if !f.hasValue {
		return domain.IndicatorRecord{}, false
	}
	rec := domain.IndicatorRecord{
		Code:  f.code,
		Raw:   f.value,
		Value: ParseValue(f.value),
	}
	if f.hasDate {
		rec.Date = ParseObservationDate(f.date)
	}
	return rec, true
}

// ParseValue parses a NUM_VALOR text with a '.' decimal point and no grouping.
// Unparseable text yields NaN.
func ParseValue(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
