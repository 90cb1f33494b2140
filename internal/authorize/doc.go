// Package authorize handles the interactive credential flows. The authorize
// command walks a user through granting each charm recipe permission to
// upload to Charmhub, and the login command obtains and stores the OAuth
// token the tool itself uses against Launchpad. Both flows hand off to the
// user's web browser.
package authorize
