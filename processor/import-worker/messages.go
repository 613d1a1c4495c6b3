package importworker

import (
	"fmt"

	"github.com/plateful/importer/extract"
)

// genericFailureMessage is stored when a job dies for a reason the failure
// taxonomy does not cover.
const genericFailureMessage = "We couldn't import this recipe. Please try again."

// userMessage maps a failure code and the source domain to the short message
// stored on the failed recipe row. Only the domain ever appears; the full
// URL is never written back.
func userMessage(code extract.Code, domain string) string {
	switch code {
	case extract.CodeBlankURL, extract.CodeInvalidURL:
		if domain != "" {
			return fmt.Sprintf("We can't import recipes from %s.", domain)
		}
		return "That link doesn't look like a valid recipe source."

	case extract.CodeTimeout:
		return withDomain("%s took too long to respond.", "The site took too long to respond.", domain)
	case extract.CodeConnectionFailed:
		return withDomain("We couldn't connect to %s.", "We couldn't connect to the site.", domain)
	case extract.CodeFetchFailed:
		return withDomain("We couldn't load the page at %s.", "We couldn't load that page.", domain)
	case extract.CodeInvalidContentType:
		return withDomain("The link at %s doesn't point to a web page.", "That link doesn't point to a web page.", domain)
	case extract.CodeResponseTooLarge:
		return withDomain("The page at %s is too large to import.", "That page is too large to import.", domain)
	case extract.CodeTooManyRedirects:
		return withDomain("The link at %s redirected too many times.", "That link redirected too many times.", domain)

	case extract.CodeNoJSONLD, extract.CodeNoRecipeFound:
		return withDomain("We couldn't find a recipe at %s.", "We couldn't find a recipe there.", domain)
	case extract.CodeExtractionFailed:
		if domain != "" {
			return fmt.Sprintf("We couldn't read a recipe out of %s.", domain)
		}
		return "We couldn't read a recipe out of the provided text."
	case extract.CodeLLMTimeout:
		return "Recipe analysis took too long. Please try again."
	case extract.CodeLLMError:
		return "Recipe analysis failed. Please try again later."

	case extract.CodeApifyMissingToken, extract.CodeApifyFailed,
		extract.CodeApifyInvalidResponse, extract.CodeApifyTimeout,
		extract.CodeApifyConnectionFailed:
		return "We couldn't retrieve that post right now. Please try again later."
	case extract.CodeInstagramEmptyResult:
		return "We couldn't find that post."
	case extract.CodeInstagramNoCaption:
		return "That post has no caption to import a recipe from."

	default:
		return genericFailureMessage
	}
}

func withDomain(withFmt, without, domain string) string {
	if domain == "" {
		return without
	}
	return fmt.Sprintf(withFmt, domain)
}
