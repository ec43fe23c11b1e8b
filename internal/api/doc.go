// Package api implements the HTTP control surface for the task service:
// creating and inspecting tasks, cancelling them, and receiving progress and
// outcome reports from external extraction agents.
package api
