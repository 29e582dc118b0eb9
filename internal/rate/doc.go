// Package rate throttles refresh attempts per token identifier with
// fixed-window Redis counters. A stolen refresh token hammered in a tight
// loop hits the window cap long before it exhausts the rotation protocol.
package rate
