package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func sampleTransactions() []models.Transaction {
	return []models.Transaction{
		{
			Request: models.Request{
				Method:  "POST",
				URL:     "https://target.example/login?next=%2F",
				Headers: models.Headers{{Name: "Host", Value: "target.example"}, {Name: "Content-Type", Value: "application/json"}},
				Body:    models.Blob("{\"user\":\"admin\"}\r\n\x00\xff"),
			},
			Response: &models.Response{
				StatusCode: 302,
				Headers:    models.Headers{{Name: "Location", Value: "/home"}},
				Body:       models.Blob("redirect"),
			},
			Annotations: &models.Annotations{Notes: "weak creds\nline two", HighlightColor: models.HighlightRed},
		},
		{
			Request: models.Request{Method: "GET", URL: "https://target.example/"},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := sampleTransactions()

	data, err := Encode(in)
	require.NoError(t, err)

	res, err := Decode(data)
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Transactions, len(in))

	for i := range in {
		got := res.Transactions[i]
		assert.Equal(t, in[i].Request.Method, got.Request.Method)
		assert.Equal(t, in[i].Request.URL, got.Request.URL)
		assert.Equal(t, in[i].Request.Body.String(), got.Request.Body.String())
	}

	first := res.Transactions[0]
	require.NotNil(t, first.Response)
	assert.Equal(t, 302, first.Response.StatusCode)
	assert.Equal(t, "redirect", first.Response.Body.String())
	assert.Equal(t, "/home", first.Response.Headers.Get("location"))
	require.NotNil(t, first.Annotations)
	assert.Equal(t, "weak creds\nline two", first.Annotations.Notes)
	assert.Equal(t, models.HighlightRed, first.Annotations.HighlightColor)

	second := res.Transactions[1]
	assert.Nil(t, second.Response, "absent response must stay absent")
	assert.Nil(t, second.Annotations, "empty annotations must not be attached")
}

func TestEncode_WireShape(t *testing.T) {
	data, err := Encode([]models.Transaction{{Request: models.Request{Method: "GET", URL: "/"}}})
	require.NoError(t, err)

	var items []map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)

	assert.Equal(t, b64("GET"), items[0]["request"]["method"])
	assert.Equal(t, b64("/"), items[0]["request"]["url"])
	assert.Equal(t, b64("0"), items[0]["response"]["statusCode"])
	assert.Equal(t, "", items[0]["response"]["headers"])
	assert.Equal(t, "", items[0]["response"]["body"])
	_, hasAnnotations := items[0]["annotations"]
	assert.False(t, hasAnnotations)
}

func TestEncode_NotesOnly(t *testing.T) {
	data, err := Encode([]models.Transaction{{
		Request:     models.Request{Method: "GET", URL: "/"},
		Annotations: &models.Annotations{Notes: "n"},
	}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"annotations":{"notes":"`+b64("n")+`"}`)
}

// Header lines are rebuilt from text, so a malformed line is lost and
// whitespace around values is normalised.
func TestDecode_HeaderFidelityGap(t *testing.T) {
	doc := `[{"request":{"method":"` + b64("GET") + `","url":"` + b64("/x") +
		`","headers":"` + b64("Host: a\r\nno colon here\r\nX-Pad:   spaced   ") + `","body":""}}]`

	res, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	h := res.Transactions[0].Request.Headers
	require.Len(t, h, 2)
	assert.Equal(t, "a", h.Get("Host"))
	assert.Equal(t, "spaced", h.Get("X-Pad"))
	assert.Nil(t, res.Transactions[0].Response)
}

func TestDecode_SkipsBadItems(t *testing.T) {
	good := `{"request":{"method":"` + b64("GET") + `","url":"` + b64("/ok") + `","headers":"","body":""}}`
	doc := `[` + good + `,
		{"request":{"method":"%%%","url":"","headers":"","body":""}},
		{"response":{"statusCode":"` + b64("200") + `"}},
		42,
		{"request":{"method":"","url":"` + b64("/x") + `"}},
		` + good + `]`

	res, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, 4, res.Skipped)
}

func TestDecode_StatusCodes(t *testing.T) {
	mk := func(code string) string {
		return `[{"request":{"method":"` + b64("GET") + `","url":"` + b64("/") +
			`"},"response":{"statusCode":"` + b64(code) + `","headers":"","body":"` + b64("hi") + `"}}]`
	}

	res, err := Decode([]byte(mk("404")))
	require.NoError(t, err)
	require.NotNil(t, res.Transactions[0].Response)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\nhi", string(res.Transactions[0].Response.Raw()))

	for _, code := range []string{"0", "-1", "abc"} {
		res, err = Decode([]byte(mk(code)))
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Nil(t, res.Transactions[0].Response, "status %q", code)
	}
}

func TestDecode_UnknownHighlightColorDropped(t *testing.T) {
	doc := `[{"request":{"method":"` + b64("GET") + `","url":"` + b64("/") +
		`"},"annotations":{"highlightColor":"` + b64("ULTRAVIOLET") + `"}},` +
		`{"request":{"method":"` + b64("GET") + `","url":"` + b64("/") +
		`"},"annotations":{"notes":"` + b64("keep") + `","highlightColor":"` + b64("ULTRAVIOLET") + `"}}]`

	res, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Nil(t, res.Transactions[0].Annotations)
	require.NotNil(t, res.Transactions[1].Annotations)
	assert.Equal(t, "keep", res.Transactions[1].Annotations.Notes)
	assert.Empty(t, res.Transactions[1].Annotations.HighlightColor)
}

func TestDecode_DocumentFailure(t *testing.T) {
	for _, doc := range []string{``, `{"items":[]}`, `not json`, `null`} {
		res, err := Decode([]byte(doc))
		require.Error(t, err, "doc %q", doc)
		assert.Empty(t, res.Transactions)

		var cerr *CodecError
		assert.True(t, errors.As(err, &cerr))
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	res, err := Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Zero(t, res.Skipped)
}

func TestDecode_MethodKeptVerbatim(t *testing.T) {
	txs := []models.Transaction{{Request: models.Request{Method: " get ", URL: "/padded"}}}
	data, err := Encode(txs)
	require.NoError(t, err)

	res, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, " get ", res.Transactions[0].Request.Method)

	blank := `[{"request":{"method":"` + b64("  ") + `","url":"` + b64("/x") + `"}}]`
	res, err = Decode([]byte(blank))
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 1, res.Skipped)
}
