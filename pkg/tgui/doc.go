// Package tgui holds small Telegram UI helpers: inline keyboard builders,
// "scope:action:args" callback data and HTML escaping for ParseMode=HTML.
package tgui
