package scraper

import (
	"strings"

	"scouted/discovery-service/internal/textutil"
)

// Parser-local vocabularies. These gate what an extractor emits at all;
// the pipeline's relevance filter runs afterwards with its own lists.
var (
	// devex and alliance require one of these plus an education/funding word.
	feedIndiaWords = []string{
		"india", "indian", "south asia", "global south", "developing countr", "lmic", "delhi", "mumbai",
	}
	allianceIndiaWords = []string{
		"india", "indian", "south asia", "global south", "developing countr", "lmic", "asia",
	}
	feedEducationFundingWords = []string{
		"education", "school", "literacy", "learning", "teacher",
		"grant", "funding", "fund", "philanthrop", "csr", "foundation",
		"donat", "invest", "partnership", "million", "billion",
		"early childhood", "k-12", "edtech", "scholarship", "fellowship",
	}

	// idr items must signal an opportunity rather than plain news.
	fundingIntentWords = []string{
		"grant", "funding", "fund ", "csr", "philanthrop", "donat", "invest",
		"partnership", "commit", "million", "crore", "lakh", "foundation",
		"initiative", "programme", "launch", "announce", "award", "fellowship",
		"scholarship", "endow", "sponsor", "pledge", "allocat",
	}

	// grants-gov and govuk-fcdo post-filter API hits with these.
	apiIndiaWords = []string{
		"india", "indian", "south asia", "subcontinent", "developing countr",
		"lmic", "low-income countr", "global south",
		"uttar pradesh", "madhya pradesh", "haryana", "gujarat", "rajasthan",
		"bihar", "odisha", "jharkhand", "maharashtra", "delhi",
	}
	apiEducationWords = []string{
		"education", "school", "teacher", "literacy", "numeracy", "learning",
		"classroom", "curriculum", "student", "scholarship", "fellowship",
		"early childhood", "k-12", "pedagog", "girls education",
	}

	// fundsforngos India-tag pages keep only posts matching these.
	listingEducationWords = []string{
		"education", "school", "learning", "teacher", "literacy", "numeracy",
		"edtech", "classroom", "child", "youth", "fln", "stem", "scholarship",
		"fellowship", "training", "anganwadi", "early childhood",
	}
)

// matchesAll reports whether text (case-insensitive) hits at least one word
// from every group. An empty group list matches.
func matchesAll(text string, groups ...[]string) bool {
	lower := strings.ToLower(text)
	for _, g := range groups {
		if !textutil.ContainsAny(lower, g) {
			return false
		}
	}
	return true
}
