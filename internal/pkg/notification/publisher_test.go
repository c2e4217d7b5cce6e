package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salaryPaidEvent() Event {
	phone := "0712345678"
	return Event{
		Type:      EventSalaryPaid,
		CompanyID: "company-1",
		Recipient: Recipient{EmployeeID: "emp-1", Name: "Kouassi Aya", PhoneNumber: &phone},
		Payload: map[string]string{
			"period":     "Janvier 2024",
			"net_amount": "449139",
		},
		OccurredAt: time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC),
	}
}

func TestEncodeMessage(t *testing.T) {
	msg, err := encodeMessage(salaryPaidEvent())
	require.NoError(t, err)

	assert.Equal(t, "company-1:emp-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "payroll.salary_paid", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "449139", decoded.Payload["net_amount"])
	assert.Equal(t, "Kouassi Aya", decoded.Recipient.Name)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, p.Notify(context.Background(), salaryPaidEvent()))
	assert.Contains(t, buf.String(), `"type":"payroll.salary_paid"`)
	assert.Contains(t, buf.String(), `"employee_id":"emp-1"`)
}
