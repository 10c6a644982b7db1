// Package anomaly provides failure scoring for machine sensor windows.
//
// Two interchangeable scorers implement the same contract:
//
//   - ThresholdScorer: pure pass-through that always reports zero
//     probability. Anomalies then come entirely from the normalizer's
//     direct threshold checks.
//   - ModelScorer: a per-machine statistical model that compares recent
//     feature trends (temperature, vibration, power, tool wear) against
//     a rolling baseline and reports a failure probability plus
//     categorical warnings.
//
// The rest of the pipeline is unaffected by which scorer is installed:
// a missing or mid-retrain model degrades gracefully to threshold-only
// behavior. The model's fitted state lives entirely behind the Scorer
// interface; persistence and retraining are external concerns.
//
// Window holds the bounded recent-reading history for one machine and
// is the only input the scorers see.
package anomaly
