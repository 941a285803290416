package vellum

// ExtractOptions holds configuration for document access.
type ExtractOptions struct {
	// Page selection (1-indexed in API, stored as-is)
	pages []int

	// Decryption
	password             string
	metadataRequiresAuth bool

	// Loading behavior
	disableRecovery bool

	// Separator placed between pages in joined text output.
	pageSeparator string
}

// defaultOptions returns the default extraction options.
func defaultOptions() ExtractOptions {
	return ExtractOptions{
		pages:         nil, // nil means all pages
		pageSeparator: "\n\n",
	}
}

// clone creates a deep copy of ExtractOptions.
func (o ExtractOptions) clone() ExtractOptions {
	newOpts := ExtractOptions{
		password:             o.password,
		metadataRequiresAuth: o.metadataRequiresAuth,
		disableRecovery:      o.disableRecovery,
		pageSeparator:        o.pageSeparator,
	}

	// Deep copy pages slice
	if o.pages != nil {
		newOpts.pages = make([]int, len(o.pages))
		copy(newOpts.pages, o.pages)
	}

	return newOpts
}
