package bccr

import (
	"math"
	"strings"
	"testing"
)

const singleRecordPayload = `<?xml version="1.0" encoding="utf-8"?>
<DataSet xmlns="http://ws.sdde.bccr.fi.cr">
  <diffgr:diffgram xmlns:msdata="urn:schemas-microsoft-com:xml-msdata" xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1">
    <Datos_de_INGC011_CAT_INDICADORECONOMIC xmlns="">
      <INGC011_CAT_INDICADORECONOMIC diffgr:id="INGC011_CAT_INDICADORECONOMIC1" msdata:rowOrder="0">
        <COD_INDICADORINTERNO>317</COD_INDICADORINTERNO>
        <DES_FECHA>2025-10-15T00:00:00-06:00</DES_FECHA>
        <NUM_VALOR>501.41000000</NUM_VALOR>
      </INGC011_CAT_INDICADORECONOMIC>
    </Datos_de_INGC011_CAT_INDICADORECONOMIC>
  </diffgr:diffgram>
</DataSet>`

func block(code, date, value string) string {
	var b strings.Builder
	b.WriteString(`<INGC011_CAT_INDICADORECONOMIC diffgr:id="x" msdata:rowOrder="0">`)
	if code != "" {
		b.WriteString("<COD_INDICADORINTERNO>" + code + "</COD_INDICADORINTERNO>")
	}
	if date != "" {
		b.WriteString("<DES_FECHA>" + date + "</DES_FECHA>")
	}
	if value != "" {
		b.WriteString("<NUM_VALOR>" + value + "</NUM_VALOR>")
	}
	b.WriteString("</INGC011_CAT_INDICADORECONOMIC>")
	return b.String()
}

func dataset(inner string) string {
	return `<DataSet xmlns="http://ws.sdde.bccr.fi.cr"><diffgr:diffgram xmlns:msdata="urn:schemas-microsoft-com:xml-msdata" xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1"><Datos_de_INGC011_CAT_INDICADORECONOMIC xmlns="">` +
		inner + `</Datos_de_INGC011_CAT_INDICADORECONOMIC></diffgr:diffgram></DataSet>`
}

func TestExtractRecordsSingleBlock(t *testing.T) {
	records := ExtractRecords(singleRecordPayload)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Code != "317" {
		t.Fatalf("Code = %q", rec.Code)
	}
	if math.Abs(rec.Value-501.41) > 1e-9 {
		t.Fatalf("Value = %v", rec.Value)
	}
	if rec.Date.Day != 15 || rec.Date.Month != 10 || rec.Date.Year != 2025 {
		t.Fatalf("Date = %#v", rec.Date)
	}
}

func TestExtractRecordsKeepsDocumentOrder(t *testing.T) {
	payload := dataset(
		block("317", "15/10/2025", "500.00") +
			block("318", "15/10/2025", "510.25"),
	)
	records := ExtractRecords(payload)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Code != "317" || records[0].Value != 500.00 {
		t.Fatalf("first record %#v", records[0])
	}
	if records[1].Code != "318" || records[1].Value != 510.25 {
		t.Fatalf("second record %#v", records[1])
	}
}

func TestExtractRecordsToleratesNoise(t *testing.T) {
	payload := `<?xml version="1.0"?>
<DataSet xmlns="http://ws.sdde.bccr.fi.cr">
  <xs:schema id="NewDataSet" xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="INGC011_CAT_INDICADORECONOMIC_DESC"/>
  </xs:schema>
  <Meta><NUM_VALOR>999</NUM_VALOR></Meta>
  <diffgr:diffgram xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1" xmlns:msdata="urn:schemas-microsoft-com:xml-msdata">
    <Datos_de_INGC011_CAT_INDICADORECONOMIC xmlns="">
      <Extra>ignored</Extra>
      ` + block("317", "", "500.00") + `
      <!-- comment between records -->
      <Other attr="1"><Nested/></Other>
      ` + block("318", "", "510.25") + `
    </Datos_de_INGC011_CAT_INDICADORECONOMIC>
  </diffgr:diffgram>
  <Trailer>done</Trailer>
</DataSet>`

	records := ExtractRecords(payload)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %#v", len(records), records)
	}
	if records[0].Code != "317" || records[1].Code != "318" {
		t.Fatalf("unexpected codes %q %q", records[0].Code, records[1].Code)
	}
}

func TestExtractRecordsCountsEveryValidBlock(t *testing.T) {
	var b strings.Builder
	const n = 250
	for i := 0; i < n; i++ {
		b.WriteString(block("317", "2025-01-02T00:00:00-06:00", "1.5"))
	}
	if got := len(ExtractRecords(dataset(b.String()))); got != n {
		t.Fatalf("expected %d records, got %d", n, got)
	}
}

func TestExtractRecordsSkipsBlockWithoutValue(t *testing.T) {
	payload := dataset(
		block("317", "15/10/2025", "500.00") +
			block("318", "15/10/2025", "") +
			block("319", "15/10/2025", "1.00"),
	)
	records := ExtractRecords(payload)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Code != "319" {
		t.Fatalf("expected block without value to be skipped, got %#v", records)
	}
}

func TestExtractRecordsEmptyInputs(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"plain text": "Service Unavailable",
		"html page":  "<html><head><title>Runtime Error</title></head><body>boom</body></html>",
		"no blocks":  dataset("<Other>1</Other>"),
		"binary":     "\x00\xff\xfe<<<>>>",
	}
	for name, payload := range cases {
		records := ExtractRecords(payload)
		if records == nil {
			t.Fatalf("%s: expected empty slice, got nil", name)
		}
		if len(records) != 0 {
			t.Fatalf("%s: expected 0 records, got %d", name, len(records))
		}
	}
}

func TestExtractRecordsTruncatedPayloadKeepsCompletedBlocks(t *testing.T) {
	full := dataset(block("317", "", "500.00") + block("318", "", "510.25"))
	cut := full[:strings.Index(full, "510.25")]

	records := ExtractRecords(cut)
	if len(records) != 1 || records[0].Code != "317" {
		t.Fatalf("expected only the completed block, got %#v", records)
	}
}

func TestExtractRecordsNonNumericValueIsEmitted(t *testing.T) {
	records := ExtractRecords(dataset(block("317", "15/10/2025", "1,234.50")))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Numeric() || !math.IsNaN(records[0].Value) {
		t.Fatalf("expected NaN value, got %v", records[0].Value)
	}
	if records[0].Raw != "1,234.50" {
		t.Fatalf("Raw = %q", records[0].Raw)
	}
}

func TestExtractRecordsTrimsFieldsAndAllowsMissingCode(t *testing.T) {
	payload := dataset(`<INGC011_CAT_INDICADORECONOMIC>
		<DES_FECHA>
			15/10/2025
		</DES_FECHA>
		<NUM_VALOR>  <![CDATA[ 42.5 ]]>  </NUM_VALOR>
	</INGC011_CAT_INDICADORECONOMIC>`)

	records := ExtractRecords(payload)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Code != "" {
		t.Fatalf("expected empty code, got %q", rec.Code)
	}
	if rec.Value != 42.5 {
		t.Fatalf("Value = %v", rec.Value)
	}
	if rec.Date.Day != 15 || rec.Date.Month != 10 {
		t.Fatalf("Date = %#v", rec.Date)
	}
}

func TestExtractRecordsBadDateKeepsRecord(t *testing.T) {
	records := ExtractRecords(dataset(block("317", "yesterday", "1.0")))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Date.Valid() {
		t.Fatalf("expected invalid date, got %#v", records[0].Date)
	}
	if records[0].Date.Raw != "yesterday" {
		t.Fatalf("Date.Raw = %q", records[0].Date.Raw)
	}
}

func TestExtractRecordsFirstFieldOccurrenceWins(t *testing.T) {
	payload := dataset(`<INGC011_CAT_INDICADORECONOMIC>
		<NUM_VALOR>1.0</NUM_VALOR>
		<NUM_VALOR>2.0</NUM_VALOR>
	</INGC011_CAT_INDICADORECONOMIC>`)
	records := ExtractRecords(payload)
	if len(records) != 1 || records[0].Value != 1.0 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestExtractRecordsUnwrapsEscapedDataSet(t *testing.T) {
	inner := `<?xml version="1.0" encoding="utf-16"?>` + dataset(block("317", "15/10/2025", "500.00")+block("318", "15/10/2025", "510.25"))
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(inner)
	payload := `<?xml version="1.0" encoding="utf-8"?>
<string xmlns="http://ws.sdde.bccr.fi.cr">` + escaped + `</string>`

	records := ExtractRecords(payload)
	if len(records) != 2 {
		t.Fatalf("expected 2 records from escaped payload, got %d", len(records))
	}
	if records[0].Code != "317" || records[1].Value != 510.25 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestExtractRecordsDeclaredLatin1(t *testing.T) {
	payload := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" + dataset(block("317", "15/10/2025", "7.25"))
	records := ExtractRecords(payload)
	if len(records) != 1 || records[0].Value != 7.25 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestParseValue(t *testing.T) {
	if got := ParseValue(" 501.41000000 "); math.Abs(got-501.41) > 1e-9 {
		t.Fatalf("ParseValue = %v", got)
	}
	if got := ParseValue("abc"); !math.IsNaN(got) {
		t.Fatalf("expected NaN, got %v", got)
	}
	if got := ParseValue(""); !math.IsNaN(got) {
		t.Fatalf("expected NaN for empty, got %v", got)
	}
}

func TestExtractRecordsSurvivesDamageAroundBlocks(t *testing.T) {
	rec := block("317", "15/10/2025", "500.00")
	cases := map[string]string{
		"latin1 byte in note":   dataset("<Note>Sin informaci\xf3n</Note>" + rec),
		"stray angle bracket":   dataset("<Note>a < b</Note>" + rec),
		"control character":     dataset("x\x01y" + rec),
		"utf-16 declared":       `<?xml version="1.0" encoding="utf-16"?>` + dataset(rec),
		"unknown encoding":      `<?xml version="1.0" encoding="x-bogus"?>` + dataset(rec),
		"damage after block":    dataset(rec + "<Note>\xff\x02 < </Note>"),
		"unclosed element noise": dataset("<Open>" + rec),
	}
	for name, payload := range cases {
		records := ExtractRecords(payload)
		if len(records) != 1 {
			t.Fatalf("%s: expected 1 record, got %d", name, len(records))
		}
		if records[0].Code != "317" || records[0].Value != 500.00 {
			t.Fatalf("%s: unexpected record %#v", name, records[0])
		}
	}
}

func TestExtractRecordsDamagedBlockDropsOnlyThatBlock(t *testing.T) {
	payload := dataset(
		block("317", "15/10/2025", "500.00") +
			`<INGC011_CAT_INDICADORECONOMIC><NUM_VALOR>1 < 2</NUM_VALOR></INGC011_CAT_INDICADORECONOMIC>` +
			block("319", "15/10/2025", "1.00"),
	)
	records := ExtractRecords(payload)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %#v", records)
	}
	if records[0].Code != "317" || records[1].Code != "319" {
		t.Fatalf("unexpected codes %q %q", records[0].Code, records[1].Code)
	}
}

func TestExtractRecordsUnclosedBlockYieldsToNext(t *testing.T) {
	payload := dataset(`<INGC011_CAT_INDICADORECONOMIC><NUM_VALOR>9.0</NUM_VALOR>` +
		`<INGC011_CAT_INDICADORECONOMIC/>` +
		block("318", "", "510.25"))
	records := ExtractRecords(payload)
	if len(records) != 1 || records[0].Code != "318" {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestExtractRecordsIgnoresLongerTagNames(t *testing.T) {
	payload := dataset(`<INGC011_CAT_INDICADORECONOMIC_DESC><NUM_VALOR>1</NUM_VALOR></INGC011_CAT_INDICADORECONOMIC_DESC>` +
		block("317", "", "2.5"))
	records := ExtractRecords(payload)
	if len(records) != 1 || records[0].Value != 2.5 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestExtractRecordsBytesDecodesDeclaredCharset(t *testing.T) {
	body := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" + dataset(block("C\xf3d", "15/10/2025", "7.25")))
	records := ExtractRecordsBytes(body)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Code != "Cód" {
		t.Fatalf("Code = %q", records[0].Code)
	}
}

func TestExtractRecordsBytesUTF16WithBOM(t *testing.T) {
	text := `<?xml version="1.0" encoding="utf-16"?>` + dataset(block("317", "15/10/2025", "500.00"))
	body := []byte{0xFF, 0xFE}
	for i := 0; i < len(text); i++ {
		body = append(body, text[i], 0)
	}
	records := ExtractRecordsBytes(body)
	if len(records) != 1 || records[0].Value != 500.00 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestExtractRecordsBytesIgnoresMisleadingDeclaration(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="utf-16"?>` + dataset(block("317", "", "1.5")))
	if records := ExtractRecordsBytes(body); len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}
