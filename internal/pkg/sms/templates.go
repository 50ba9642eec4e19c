package sms

// Message templates, rendered with text/template

const PaymentReceiptTemplate = `Paid {{.Amount}} {{.Currency}} at {{.Merchant}}. Ref {{.Reference}}. New balance: {{.Balance}} {{.Currency}}.`

const TopUpRequestedTemplate = `Your balance is short by {{.Amount}} {{.Currency}}. Approve the {{.Provider}} prompt on your phone to top up. Ref {{.Reference}}.`

const TopUpSuccessfulTemplate = `Top-up of {{.Amount}} {{.Currency}} received. Tap your card again to complete the payment. Ref {{.Reference}}.`

const TopUpFailedTemplate = `Top-up of {{.Amount}} {{.Currency}} was not completed{{if .Reason}} ({{.Reason}}){{end}}. Ref {{.Reference}}.`

const TransferReceivedTemplate = `You received {{.Amount}} {{.Currency}}. Ref {{.Reference}}.`
