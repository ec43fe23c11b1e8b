// Package events broadcasts task status changes to interested subscribers
// without coupling the task core to any particular consumer. Delivery is
// best-effort and at-least-once; having no subscriber is defined as success,
// because push-style UIs may or may not be attached at any given moment.
package events
