// Package registration manages the account registration lifecycle: pending
// accounts, activation keys, email verification and optional moderation.
//
// Lifecycle:
//   - Register validates an AccountDraft, creates an inactive Account and its
//     RegistrationProfile in one repository call and sends the registration
//     email carrying the activation key.
//   - VerifyOrActivate consumes the key. Without moderation the account is
//     activated. With moderation the profile is marked verified and moderators
//     are notified; Moderate later approves or rejects it.
//   - Replayed keys are no-ops. Rejected keys stay consumed.
//
// Keys are produced by a TokenGenerator and expire ActivationWindowDays after
// the profile was created. A window of zero or less never expires.
//
// Concurrency:
//   - Repositories implement optimistic locking through the profile Version.
//     The Engine retries a conflicting transition once after re-reading state.
//   - Calls for the same key inside one process are collapsed, and a
//     TokenLocker can serialize them across processes.
//
// Events:
//   - LifecycleEvent values are sent to EventSink implementations after each
//     committed transition. Sink errors are logged and never returned.
package registration
