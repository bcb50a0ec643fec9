// Package reconcile brings a host's configuration directory in line with a
// bundle of template configuration files.
//
// A bundle is a directory tree (see package source) that contains
// directories named "defaults" and directories named after environments,
// at any depth:
//
//	bundle/
//	  app/defaults/app.properties
//	  app/alpha/app.properties
//	  app/beta/app.properties
//
// Reconciling environment "alpha" into /etc/app first copies
// defaults/app.properties over /etc/app/app.properties, then sets every key
// of alpha/app.properties in it. Destination files that have no counterpart
// in the bundle are never touched.
//
// Errors wrap ErrInvalidArgument, ErrInvalidState or ErrIO and can be tested
// with errors.Is.
package reconcile
