package models

// StudentImportResult tallies a bulk student import.
type StudentImportResult struct {
	Success    int      `json:"success"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

// EligibilityImportResult tallies a bulk eligibility update.
type EligibilityImportResult struct {
	Success  int      `json:"success"`
	NotFound int      `json:"notFound"`
	Errors   []string `json:"errors"`
}
