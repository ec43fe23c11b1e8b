// Package gemini implements the analysis.Analyzer interface using Google's
// Gemini API. It maps API failures onto the analysis error taxonomy so the
// retry executor can tell transient faults from permanent ones.
package gemini
