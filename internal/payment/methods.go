package payment

const (
	// Cards
	MethodAmex    = "amex"
	MethodMaestro = "maestro"
	MethodMC      = "mc"
	MethodVisa    = "visa"

	// Bank transfer
	MethodBankTransferDE   = "bankTransfer_DE"
	MethodBankTransferIBAN = "bankTransfer_IBAN"
	MethodDirectEbanking   = "directEbanking"
	MethodGiropay          = "giropay"

	// Direct debit
	MethodELV             = "elv"
	MethodSEPADirectDebit = "sepadirectdebit"
)

// MethodNames maps Adyen payment method codes to the labels shown to
// shoppers and staff.
var MethodNames = map[string]string{
	MethodAmex:             "American Express",
	MethodBankTransferDE:   "Überweisung",
	MethodBankTransferIBAN: "SEPA-Überweisung",
	MethodDirectEbanking:   "Sofortüberweisung",
	MethodELV:              "Lastschrift",
	MethodGiropay:          "GiroPay",
	MethodMaestro:          "Maestro",
	MethodMC:               "MasterCard",
	MethodSEPADirectDebit:  "SEPA-Lastschrift",
	MethodVisa:             "VISA",
}

// MethodName returns the display label for code, or code itself when unknown.
func MethodName(code string) string {
	if name, ok := MethodNames[code]; ok {
		return name
	}
	return code
}

// SourceTypeCode is the storefront source type for an Adyen method.
func SourceTypeCode(method string) string {
	return "adyen-" + method
}

// EventTypeName names the storefront payment event type for an Adyen code,
// either an auth result or a notification event code.
func EventTypeName(code string) string {
	return "Adyen - " + code
}
