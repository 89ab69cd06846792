package server

// sampleBrains are starter decision scripts served to the UI.
var sampleBrains = map[string]string{
	"spinner": `function think(state) {
  return { rotate: 1, move: "forward", shoot: true };
}`,

	"hunter": `function think(state) {
  var me = state.my_tank;
  var target = null, best = Infinity;
  for (var i = 0; i < state.other_tanks.length; i++) {
    var t = state.other_tanks[i];
    if (!t.alive) continue;
    var d = Math.hypot(t.x - me.x, t.y - me.y);
    if (d < best) { best = d; target = t; }
  }
  if (!target) return { rotate: 1 };
  var want = Math.atan2(target.y - me.y, target.x - me.x) * 180 / Math.PI;
  var diff = ((want - me.angle) % 360 + 540) % 360 - 180;
  var action = { shoot: Math.abs(diff) < 8 };
  if (diff > 3) action.rotate = 1;
  if (diff < -3) action.rotate = -1;
  if (best > 150) action.move = "forward";
  return action;
}`,

	"wanderer": `var turns = 0;
function think(state) {
  turns++;
  var me = state.my_tank;
  var nearWall = me.x < 40 || me.y < 40 ||
    me.x > state.arena_width - 40 || me.y > state.arena_height - 40;
  if (nearWall) return { rotate: 1, move: "backward" };
  if (turns % 120 === 0) return { taunt: "Still here." };
  return { move: "forward", shoot: Math.random() < 0.1 };
}`,
}
