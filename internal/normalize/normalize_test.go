package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/storytrace/internal/schema"
)

func TestText_Empty(t *testing.T) {
	assert.Equal(t, "", Text(""))
}

func TestText_JoinsHyphenatedBreaks(t *testing.T) {
	assert.Equal(t, "The system shall authen ticate users.", Text("The system shall authen ticate users."))
	assert.Equal(t, "The system shall authenticate users.", Text("The system shall authen-\nticate users."))
}

func TestText_MergesSoftWraps(t *testing.T) {
	in := "The portal shall display\npatient vitals within\ntwo seconds."
	assert.Equal(t, "The portal shall display patient vitals within two seconds.", Text(in))
}

func TestText_PreservesBulletsAndHeadings(t *testing.T) {
	in := "FUNCTIONAL REQUIREMENTS\n- first item\ncontinues here\n• second item\n(a) lettered\n1. numbered"
	want := "FUNCTIONAL REQUIREMENTS\n- first item\ncontinues here\n• second item\n(a) lettered\n1. numbered"
	assert.Equal(t, want, Text(in))
}

func TestText_PreservesRequirementIDLines(t *testing.T) {
	in := "Intro text\nREQ-1 The system shall log in users.\nREQ-2 The system shall log out users."
	assert.Equal(t, "Intro text\nREQ-1 The system shall log in users.\nREQ-2 The system shall log out users.", Text(in))
}

func TestText_CollapsesBlankRuns(t *testing.T) {
	in := "para one\n\n\n\n\npara two"
	assert.Equal(t, "para one\n\npara two", Text(in))
}

func TestText_NonBreakingSpacesAndCRLF(t *testing.T) {
	assert.Equal(t, "a b\n\nc", Text("a\u00a0b\r\n\r\nc"))
}

func TestPages_KeepsNumbers(t *testing.T) {
	got := Pages([]schema.Page{{Number: 1, Text: "a\nb"}, {Number: 2, Text: "c"}})
	assert.Equal(t, []schema.Page{{Number: 1, Text: "a b"}, {Number: 2, Text: "c"}}, got)
	assert.Equal(t, "a b\nc", Join(got))
}

func TestText_KeepsEveryRequirementMarker(t *testing.T) {
	in := "The portal serves clinicians\n3 Users\nwrapped tail\n4.2 Billing\nREQ-5 Print invoices."
	want := "The portal serves clinicians\n3 Users\nwrapped tail\n4.2 Billing\nREQ-5 Print invoices."
	assert.Equal(t, want, Text(in))
}

func TestText_TitleCaseHeadingsStandAlone(t *testing.T) {
	in := "Clinician Portal\nThe nurse shall record\nvitals."
	assert.Equal(t, "Clinician Portal\nThe nurse shall record vitals.", Text(in))
}

func TestIsHeading(t *testing.T) {
	assert.True(t, IsHeading("FUNCTIONAL REQUIREMENTS"))
	assert.True(t, IsHeading("Clinician Portal"))
	assert.True(t, IsHeading("Users"))
	assert.False(t, IsHeading("API"))
	assert.False(t, IsHeading("The portal shall display"))
	assert.False(t, IsHeading("lowercase heading"))
}
