// Package language handles the narration locale: BCP-47 tag validation,
// base-language derivation for upload metadata, and matching a configured
// Azure voice name against the locale it embeds.
package language
