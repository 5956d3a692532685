// Package issues derives SEO issues from an extracted page, generalizing
// the teacher's internal/analyzer package's condition-check-and-append
// shape onto the bit-stable issue vocabulary and thresholds this system
// exposes externally.
package issues

import (
	"fmt"
	"strings"

	"github.com/rankriot/scanner/internal/model"
)

const (
	minTitleLength = 10
	maxTitleLength = 70

	minMetaDescriptionLength = 50
	maxMetaDescriptionLength = 160
)

// Analyze is a pure function: same Page in, same Issues out. A fetch
// failure (HTTPStatus == 0) or non-HTML content short-circuits to a single
// issue, matching spec.md §4.5's "minimal page, no extracted fields"
// contract — there is nothing else to evaluate in either case.
func Analyze(page *model.Page) []model.Issue {
	if page.HTTPStatus == 0 {
		return []model.Issue{newIssue(page, model.IssueError, model.SeverityHigh, "page could not be fetched")}
	}
	if !isHTMLContentType(page.ContentType) {
		return []model.Issue{newIssue(page, model.IssueNonHTMLContent, model.SeverityMedium,
			fmt.Sprintf("content-type %q is not text/html", page.ContentType))}
	}

	var out []model.Issue

	switch {
	case page.Title == "":
		out = append(out, newIssue(page, model.IssueMissingTitle, model.SeverityHigh, "title is missing or empty"))
	case len(page.Title) < minTitleLength:
		out = append(out, newIssue(page, model.IssueTitleLength, model.SeverityMedium,
			fmt.Sprintf("title is %d characters, shorter than %d", len(page.Title), minTitleLength)))
	case len(page.Title) > maxTitleLength:
		out = append(out, newIssue(page, model.IssueTitleLength, model.SeverityMedium,
			fmt.Sprintf("title is %d characters, longer than %d", len(page.Title), maxTitleLength)))
	}

	switch {
	case page.MetaDescription == "":
		out = append(out, newIssue(page, model.IssueMissingMetaDescription, model.SeverityMedium, "meta description is missing"))
	case len(page.MetaDescription) < minMetaDescriptionLength:
		out = append(out, newIssue(page, model.IssueMetaDescriptionLength, model.SeverityLow,
			fmt.Sprintf("meta description is %d characters, shorter than %d", len(page.MetaDescription), minMetaDescriptionLength)))
	case len(page.MetaDescription) > maxMetaDescriptionLength:
		out = append(out, newIssue(page, model.IssueMetaDescriptionLength, model.SeverityLow,
			fmt.Sprintf("meta description is %d characters, longer than %d", len(page.MetaDescription), maxMetaDescriptionLength)))
	}

	switch len(page.H1) {
	case 0:
		out = append(out, newIssue(page, model.IssueMissingH1, model.SeverityMedium, "no <h1> element found"))
	case 1:
	default:
		out = append(out, newIssue(page, model.IssueMultipleH1, model.SeverityMedium,
			fmt.Sprintf("found %d <h1> elements, expected 1", len(page.H1))))
	}

	return out
}

func newIssue(page *model.Page, issueType string, severity model.Severity, description string) model.Issue {
	return model.Issue{
		ProjectID:   page.ProjectID,
		PageID:      page.ID,
		IssueType:   issueType,
		Description: description,
		Severity:    severity,
	}
}

func isHTMLContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
