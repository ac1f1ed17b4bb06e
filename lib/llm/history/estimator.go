// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import "github.com/bureau-foundation/docent/lib/llm"

// defaultCharactersPerToken is the initial ratio before calibration.
// 4.0 is conservative for English prose — BPE tokenizers typically
// average 3.5-4.5 characters per token. Conservative means we
// overestimate token counts, so the context-size readout errs toward
// showing the context as fuller than it is.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor controls how quickly the ratio adapts to
// new observations. 0.3 means 30% weight on the new observation,
// 70% on the running average.
const defaultSmoothingFactor = 0.3

// CharEstimator estimates token counts from character counts using an
// adaptive ratio that calibrates over time from actual provider usage.
//
// The initial ratio of 4.0 characters per token is conservative. After
// each completion call, [CharEstimator.RecordUsage] adjusts the ratio
// via exponential moving average, so the estimate converges toward the
// actual tokenizer's behavior for the content this session carries —
// which shifts between prose-heavy turns and retrieval turns full of
// document text.
//
// The ratio intentionally absorbs the fixed overhead of the system
// prompt and the tool definition: early estimates run slightly high,
// and as the conversation grows the ratio converges toward the true
// tokenizer ratio.
type CharEstimator struct {
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
}

// NewCharEstimator creates a CharEstimator with the default initial
// ratio of 4.0 characters per token and a smoothing factor of 0.3.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// EstimateTokens returns the estimated token count for the given
// messages based on the current character-to-token ratio. Always
// rounds up.
func (estimator *CharEstimator) EstimateTokens(messages []llm.Message) int {
	characters := messagesCharCount(messages)
	tokens := float64(characters) / estimator.charactersPerToken
	return int(tokens) + 1
}

// RecordUsage updates the estimator's calibration using the actual
// input token count from a provider response, correlated with the
// messages that were sent.
//
// On the first observation, the default ratio is replaced entirely
// by the observed ratio — a single real data point is far more
// informative than any default. Subsequent observations blend via
// exponential moving average to smooth out variation between turns
// with different content profiles.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, actualInputTokens int64) {
	if actualInputTokens <= 0 {
		return
	}
	characters := messagesCharCount(messages)
	if characters == 0 {
		return
	}

	observedRatio := float64(characters) / float64(actualInputTokens)

	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}

	// EMA update: blend new observation with running average.
	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}

// CharactersPerToken returns the current calibrated ratio. Exposed for
// the context readout in logs and the status bar.
func (estimator *CharEstimator) CharactersPerToken() float64 {
	return estimator.charactersPerToken
}
