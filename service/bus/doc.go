// Package bus implements the publish/subscribe event fabric the approval
// subsystem is composed around. Delivery is at-least-once per subscriber;
// envelope IDs give consumers a handle for deduplication.
package bus
