// Package report implements the top-products report: query the best
// sellers, render them, store the document and schedule the notification
// jobs that announce it.
package report

import (
	"time"

	"github.com/drblury/reportflow/internal/runtime/request"
)

// MaxLimit caps how many products one report may list.
const MaxLimit = 100

// ProductSale is one row of the best-seller aggregate.
type ProductSale struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	TotalSold int64  `json:"totalSold"`
}

// Payload is the operation-specific part of a TopProductsRequest.
type Payload struct {
	Limit       int    `json:"limit,omitempty"`
	ReportTitle string `json:"reportTitle,omitempty"`
}

// TopProductsRequest is the body of POST /api/reports/top-products.
type TopProductsRequest struct {
	request.Request
	Payload Payload `json:"payload"`
}

// NotificationJob is sent to the job scheduler once a report is stored.
type NotificationJob struct {
	CorrelationID    string `json:"correlationId"`
	ReportFileName   string `json:"reportFileName"`
	EmailAddress     string `json:"emailAddress,omitempty"`
	MessageRecipient string `json:"messageRecipient,omitempty"`
	Subject          string `json:"subject,omitempty"`
	MessageBody      string `json:"messageBody,omitempty"`
	PlatformType     string `json:"platformType,omitempty"`
}

// Summary is returned as the data of a successful report run.
type Summary struct {
	Message      string    `json:"message"`
	ProductCount int       `json:"productsCount"`
	FileName     string    `json:"fileName"`
	ReportSize   int       `json:"reportSize"`
	GeneratedAt  time.Time `json:"generatedAt"`
}
