package store

// Base key names, kept identical to the browser app so exported data lines up.
const (
	KeyTransactions  = "officeBuAppTransactions"
	KeyTheme         = "officeBuAppTheme"
	KeyIcons         = "officeBuAppIcons"
	KeyAPIKey        = "officeBuAppApiKey"
	KeyClientID      = "officeBuAppClientId"
	KeyWebhookURL    = "officeBuAppWebhookUrl"
	KeySpreadsheetID = "officeBuAppSpreadsheetId"
)

// Key namespaces base for a user. An empty namespace is the shared office ledger.
func Key(base, namespace string) string {
	if namespace == "" {
		return base
	}
	return base + ":" + namespace
}
