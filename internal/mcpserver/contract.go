package mcpserver

// BeliefGuide describes how LLM consumers should record and read beliefs
// and how metric values are reported.
const BeliefGuide = `# Cadence Belief Guide

Beliefs are short statements about the athlete that a coach keeps between
conversations. Each belief has a category, a stability tag and a confidence.

## Categories

preference, constraint, fitness, injury, history, motivation, physical,
scheduling, personality, meta.

## Stability

- ` + "`stable`" + `: long-lived facts (e.g. "has a standing desk job").
- ` + "`evolving`" + `: default; facts that drift over weeks.
- ` + "`session`" + `: only true for the current conversation. Archived in bulk at
  the end of a session.

## Confidence lifecycle

1. New beliefs start at 0.7 unless a confidence is given.
2. ` + "`belief_confirm`" + ` moves confidence a fixed step toward 1.
3. ` + "`belief_contradict`" + ` moves it the same step toward 0.
4. Confidence never reaches exactly 0 or 1.
5. ` + "`belief_archive_stale`" + ` archives beliefs below 0.5 that were not touched
   for 30 days. Archived beliefs are never returned by search and reject
   further feedback.
6. Recording the same text and category again touches the existing belief
   instead of creating a duplicate.
7. ` + "`belief_update`" + ` rewrites a belief whose wording was wrong or drifted.
   When a fact changed rather than its wording, record the new belief and
   ` + "`belief_supersede`" + ` the old one so the history is kept.

## Searching

` + "`belief_search`" + ` ranks active beliefs by a blend of keyword relevance and
embedding similarity. Search before upserting to avoid near-duplicates.

## Reading metrics

A metric that cannot be computed (no heart-rate strap, no speed sensor,
incomplete athlete baseline) is reported with ` + "`\"value\": null`" + ` and an
` + "`undetermined_reason`" + `. It is never reported as zero. Treat such values as
unknown, not as "no effort".
`
