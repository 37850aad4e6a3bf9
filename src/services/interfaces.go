package services

// EmailService sends reimbursement lifecycle notifications. Amounts are
// integer cents.
type EmailService interface {
	SendRequestReceivedEmail(toEmail, toName, senderName string, amount int64, requestID int64) error
	SendRequestDecisionEmail(toEmail, toName, counterpartName, status string, amount int64) error
}
