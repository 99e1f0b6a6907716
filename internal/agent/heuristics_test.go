package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordLanguageDetector(t *testing.T) {
	d := NewKeywordLanguageDetector()

	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{"javascript function", "function add(a,b){return a+b;}", "javascript"},
		{"javascript arrow", "const add = (a, b) => a + b", "javascript"},
		{"go package", "package ledger\n\nvar x = 1", "go"},
		{"go method", "func (c *Client) Close() error { return nil }", "go"},
		{"rust", "fn main() { let mut x = 5; }", "rust"},
		{"python def", "def add(a, b):\n    return a + b", "python"},
		{"python import", "import numpy\n", "python"},
		{"solidity pragma", "pragma solidity ^0.8.0;", "solidity"},
		{"solidity contract", "contract Token is ERC20 {\n}", "solidity"},
		{"unknown", "SELECT * FROM users;", LanguageUnknown},
		{"empty", "", LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.DetectLanguage(tt.code))
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "javascript", normalizeLanguage(" JS "))
	assert.Equal(t, "python", normalizeLanguage("py"))
	assert.Equal(t, "go", normalizeLanguage("Golang"))
	assert.Equal(t, "haskell", normalizeLanguage("Haskell"))
	assert.Equal(t, "", normalizeLanguage(""))
}

func TestKeywordSkillDetector(t *testing.T) {
	d := NewKeywordSkillDetector()

	tests := []struct {
		name     string
		code     string
		expected []string
	}{
		{"none", "x = 1", []string{}},
		{"react", "import React from 'react'", []string{"react"}},
		{"async", "async function load() { await fetch(url) }", []string{"async_programming"}},
		{"testing", "describe('x', () => { test('y') })", []string{"testing"}},
		{"blockchain", "pragma solidity ^0.8.0;", []string{"blockchain"}},
		{"machine learning", "import tensorflow as tf", []string{"machine_learning"}},
		{"html is not ml", "render(html)", []string{}},
		{"several in rule order", "async test for a Contract using ML", []string{"async_programming", "testing", "blockchain", "machine_learning"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.DetectSkills(tt.code))
		})
	}
}

func TestDefaultLanguageMultipliers(t *testing.T) {
	m := DefaultLanguageMultipliers()
	assert.Equal(t, 0.8, m[LanguageUnknown])
	assert.Equal(t, 1.4, m["solidity"])

	// Each call returns an independent copy
	m["solidity"] = 9
	assert.Equal(t, 1.4, DefaultLanguageMultipliers()["solidity"])
}
