// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the sagechat TUI.
//
// All colors are Lip Gloss AdaptiveColor pairs so the interface renders
// correctly on both light and dark terminals; the configured theme can
// force either mode. Terminal capability detection uses termenv.
//
// # Key Types
//
//   - Theme: All styled components, created once at startup
//   - StatusIndicators: ASCII shape indicators used alongside colors
//
// # Usage
//
//	theme := styles.NewThemeWithMode(cfg.UI.Theme)
//	fmt.Println(theme.UserMessage.Render("hello"))
package styles
