package wire

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

func formRequest(action string, values url.Values) *http.Request {
	values.Set("Action", action)
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestDetectDialect(t *testing.T) {
	jsonReq := httptest.NewRequest(http.MethodPost, "/", nil)
	jsonReq.Header.Set("X-Amz-Target", "AmazonSQS.SendMessage")
	require.Equal(t, DialectJSON, DetectDialect(jsonReq))

	queryReq := formRequest("SendMessage", url.Values{})
	require.Equal(t, DialectQuery, DetectDialect(queryReq))

	restReq := httptest.NewRequest(http.MethodGet, "/bucket/key", nil)
	require.Equal(t, DialectREST, DetectDialect(restReq))
}

func TestDispatchRendersXMLForQueryDialect(t *testing.T) {
	table := OperationTable{
		"SendMessage": func(r *http.Request) (interface{}, error) {
			var req struct {
				QueueUrl    string `json:"QueueUrl"`
				MessageBody string `json:"MessageBody"`
			}
			if err := DecodeRequest(r, &req); err != nil {
				return nil, err
			}
			return map[string]interface{}{"MessageId": "abc-123", "QueueUrl": req.QueueUrl}, nil
		},
	}

	r := formRequest("SendMessage", url.Values{"QueueUrl": {"my-queue"}, "MessageBody": {"hello"}})
	w := httptest.NewRecorder()
	Dispatch(w, r, table)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "xml")
	body := w.Body.String()
	require.Contains(t, body, "<SendMessageResponse>")
	require.Contains(t, body, "<SendMessageResult>")
	require.Contains(t, body, "<MessageId>abc-123</MessageId>")
	require.Contains(t, body, "<QueueUrl>my-queue</QueueUrl>")
	require.Contains(t, body, "</SendMessageResponse>")
}

func TestDispatchRendersJSONForJSONDialect(t *testing.T) {
	table := OperationTable{
		"SendMessage": func(r *http.Request) (interface{}, error) {
			return map[string]interface{}{"MessageId": "abc-123"}, nil
		},
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("X-Amz-Target", "AmazonSQS.SendMessage")
	w := httptest.NewRecorder()
	Dispatch(w, r, table)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "json")
	require.Contains(t, w.Body.String(), `"MessageId":"abc-123"`)
}

func TestWriteErrorXMLEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, DialectQuery, ldkerr.NotFound("QueueDoesNotExist", "no such queue: my-queue"))

	require.Equal(t, http.StatusNotFound, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "<ErrorResponse>")
	require.Contains(t, body, "<Code>QueueDoesNotExist</Code>")
	require.Contains(t, body, "<Message>no such queue: my-queue</Message>")
}

func TestDecodeFormPopulatesScalarFields(t *testing.T) {
	r := formRequest("SendMessage", url.Values{
		"QueueUrl":     {"my-queue"},
		"DelaySeconds": {"5"},
		"FifoQueue":    {"true"},
	})

	var req struct {
		QueueUrl     string `json:"QueueUrl"`
		DelaySeconds int    `json:"DelaySeconds"`
		FifoQueue    bool   `json:"FifoQueue"`
	}
	require.NoError(t, DecodeRequest(r, &req))
	require.Equal(t, "my-queue", req.QueueUrl)
	require.Equal(t, 5, req.DelaySeconds)
	require.True(t, req.FifoQueue)
}
