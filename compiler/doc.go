/*

Process of access recovery

Value Graph File (yaml) | Go Source (go) ->
	irfile | gossa ->
Value Graph (ir) + Names and Debug Types (names, tp) ->
	analyze ->
	   per load and store in a loop:
	   access.Session: Recover -> build -> emit
Report (access expressions, side statements)

*/
package compiler
